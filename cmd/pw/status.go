package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/peakwatch/internal/report"
	"github.com/zulandar/peakwatch/internal/store"
	"github.com/zulandar/peakwatch/internal/tracker"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show a session's record, history summary and trends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "peakwatch.yaml", "path to Peakwatch config file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath, id string) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	rec, history, err := store.New(gormDB).GetSession(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("session %s not found", id)
		}
		return err
	}

	fmt.Fprintf(out, "Session %s (%s)\n", rec.ID, rec.Status)
	fmt.Fprintf(out, "URL: %s\n", rec.URL)
	if rec.Message != "" {
		fmt.Fprintf(out, "Message: %s\n\n", rec.Message)
	}

	analysis := tracker.AnalyzeTrends(history)
	fmt.Fprintln(out, report.FormatReport(rec, history, analysis))
	return nil
}
