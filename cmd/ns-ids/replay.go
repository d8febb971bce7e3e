package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Go2NetIDS/internal/app"

	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file.pcap>",
	Short: "Classify a capture file and print the counters",
	Long: `Replay a capture file through the full pipeline. Records, alerts and
evidence are produced exactly as for live traffic.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, err := app.NewDetector(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create detector: %w", err)
		}
		snap, err := d.Replay(ctx, args[0])
		if cerr := d.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		return app.PrintSnapshot(os.Stdout, snap)
	},
}
