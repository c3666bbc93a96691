package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newTrackCmd() *cobra.Command {
	var (
		server   string
		notify   string
		interval int
	)

	cmd := &cobra.Command{
		Use:   "track <url>",
		Short: "Start tracking a live broadcast",
		Long: `Asks a running Peakwatch server to start tracking the given stream URL.
The session id is printed; use "pw status <id>" or the dashboard to follow it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(cmd, server, args[0], notify, interval)
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "http://localhost:5050", "Peakwatch server address")
	cmd.Flags().StringVarP(&notify, "notify", "n", "", "notify target for the completion report (slack:..., discord:..., mailto:...)")
	cmd.Flags().IntVarP(&interval, "interval", "i", 0, "poll interval in seconds (clamped to 10–600)")
	return cmd
}

func runTrack(cmd *cobra.Command, server, url, notify string, interval int) error {
	out := cmd.OutOrStdout()

	body, err := json.Marshal(map[string]interface{}{
		"url":           url,
		"notify_target": notify,
		"interval":      interval,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(server+"/api/start", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("contact server at %s: %w (is `pw serve` running?)", server, err)
	}
	defer resp.Body.Close()

	var reply struct {
		SessionID string `json:"session_id"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server rejected request: %s", reply.Error)
	}

	fmt.Fprintf(out, "Tracking session %s started\n", reply.SessionID)
	fmt.Fprintf(out, "Follow it: pw status %s\n", reply.SessionID)
	return nil
}
