package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/peakwatch/internal/config"
	"github.com/zulandar/peakwatch/internal/dashboard"
	"github.com/zulandar/peakwatch/internal/db"
	"github.com/zulandar/peakwatch/internal/fetcher"
	"github.com/zulandar/peakwatch/internal/report"
	"github.com/zulandar/peakwatch/internal/store"
	"github.com/zulandar/peakwatch/internal/tracker"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Peakwatch server",
		Long: `Starts the tracking server: resumes any in-flight sessions from the
store, serves the HTTP API and dashboard, and runs the optional digest
schedule. Shuts down gracefully on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "peakwatch.yaml", "path to Peakwatch config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Server.Port
	}

	st := store.New(gormDB)
	fetch := fetcher.NewCommandFetcher(cfg.Fetcher.Binary,
		time.Duration(cfg.Fetcher.TimeoutSeconds)*time.Second)
	router, err := report.NewRouter(cfg.Notify)
	if err != nil {
		return err
	}

	sup := tracker.NewSupervisor(tracker.SupervisorOpts{
		Store:           st,
		Fetcher:         fetch,
		Dispatcher:      router,
		DefaultInterval: cfg.Poll.DefaultInterval,
		Out:             out,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	resumed, err := sup.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume sessions: %w", err)
	}
	if resumed > 0 {
		fmt.Fprintf(out, "Resumed %d in-flight session(s)\n", resumed)
	}

	if cfg.Digest.Schedule != "" {
		digest, err := report.NewDigest(st, router, cfg.Digest.Schedule, cfg.Digest.Target, out)
		if err != nil {
			return err
		}
		digest.Start()
		defer digest.Stop()
		fmt.Fprintf(out, "Digest scheduled (%s) → %s\n", cfg.Digest.Schedule, cfg.Digest.Target)
	}

	return dashboard.Start(ctx, dashboard.StartOpts{
		Supervisor:     sup,
		Store:          st,
		Port:           port,
		NotifyBackends: router.Backends(),
		Out:            out,
	})
}

// loadConfig reads the config file, falling back to built-in defaults when
// the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}
