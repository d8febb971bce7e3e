package main

import (
	"fmt"
	"io"
	"os"

	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/logging"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string

	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "ns-ids",
	Short: "Go2NetIDS network intrusion detection engine",
	Long: `ns-ids captures packets, tracks connections, derives NSL-KDD style
connection features and classifies every packet as normal or anomalous.

Examples:
  ns-ids run                           # capture on the configured source and serve the API
  ns-ids run --idle                    # serve the API, start capture with POST /api/v1/detector/start
  ns-ids replay capture.pcap           # classify a capture file and print the counters
  ns-ids interfaces                    # list capture interfaces
  ns-ids explain                       # summarise the record file and ask the AI model about it
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logCloser, err = logging.Setup(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the configuration file")
	rootCmd.AddCommand(runCmd, replayCmd, interfacesCmd, explainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("ns-ids failed")
		os.Exit(1)
	}
}
