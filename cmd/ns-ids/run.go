package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"Go2NetIDS/internal/api"
	"Go2NetIDS/internal/app"
	"Go2NetIDS/internal/query"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	runIdle   bool
	runSource string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the detector and the status API",
	Long: `Run the detector on the configured capture source (live, nats or file)
and serve the status API until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runCommand,
}

func init() {
	runCmd.Flags().BoolVar(&runIdle, "idle", false, "Do not start capturing until requested over the API")
	runCmd.Flags().StringVar(&runSource, "source", "", "Override capture.source (live, nats or file)")
}

func runCommand(cmd *cobra.Command, args []string) error {
	if runSource != "" {
		cfg.Capture.Source = runSource
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := app.NewDetector(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.WithError(err).Warn("Detector shutdown reported errors")
		}
	}()

	opts := []api.Option{api.WithSourceFactory(d.NewSource)}
	if cfg.Records.ClickHouse.Enabled {
		q, err := query.NewClickHouseQuerier(app.ClickHouseConfig(cfg))
		if err != nil {
			log.WithError(err).Warn("Stored anomaly queries disabled")
		} else {
			defer q.Close()
			opts = append(opts, api.WithQuerier(q))
		}
	}
	server := api.NewServer(ctx, cfg.API.ListenAddr, d, opts...)
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	if !runIdle {
		src, err := d.NewSource()
		if err != nil {
			return err
		}
		if err := d.Start(ctx, src); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, stopping...")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.WithError(err).Warn("API server shutdown failed")
	}
	return nil
}
