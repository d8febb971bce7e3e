package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Go2NetIDS/internal/ai"
	"Go2NetIDS/internal/engine/record"

	"github.com/spf13/cobra"
)

var (
	explainFile string
	explainNoAI bool
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Summarise the record file and stream an AI analysis of it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := explainFile
		if path == "" {
			path = cfg.Records.CSVPath
		}
		summary, err := record.SummarizeCSV(path)
		if err != nil {
			return err
		}
		fmt.Print(summary.String())
		if explainNoAI {
			return nil
		}

		analyzer, err := ai.NewAnalyzer(&cfg.AI)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Println("\n--- AI analysis ---")
		err = analyzer.AnalyzeStream(ctx, summary.String(), func(chunk string) error {
			_, err := fmt.Fprint(os.Stdout, chunk)
			return err
		})
		fmt.Println()
		return err
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainFile, "file", "", "Record file (defaults to records.csv_path)")
	explainCmd.Flags().BoolVar(&explainNoAI, "no-ai", false, "Only print the summary")
}
