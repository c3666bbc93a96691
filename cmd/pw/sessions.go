package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/peakwatch/internal/store"
)

func newSessionsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent tracking sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd, configPath, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "peakwatch.yaml", "path to Peakwatch config file")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum sessions to list")
	return cmd
}

func runSessions(cmd *cobra.Command, configPath string, limit int) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	rows, err := store.New(gormDB).ListRecent(limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No tracking sessions yet.")
		return nil
	}

	fmt.Fprintf(out, "%-12s %-8s %10s  %-19s %s\n", "ID", "STATUS", "PEAK", "CREATED", "TITLE")
	for _, r := range rows {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		fmt.Fprintf(out, "%-12s %-8s %10d  %-19s %s\n",
			r.ID, r.Status, r.MaxViewers, r.CreatedAt.Format("2006-01-02 15:04:05"), title)
	}
	return nil
}
