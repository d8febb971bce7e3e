package main

import (
	"context"
	"fmt"
	"os"

	"Go2NetIDS/internal/app"
	"Go2NetIDS/internal/config"

	log "github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/pcap-analyzer/main.go <path_to_pcap_file> [config.yaml]")
		os.Exit(1)
	}
	pcapFilePath := os.Args[1]
	configPath := "configs/config.yaml"
	if len(os.Args) > 2 {
		configPath = os.Args[2]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// Batch runs report through stdout; alerts would only spam the mailbox.
	cfg.Alerter.Enabled = false
	log.Info("Configuration loaded successfully.")

	d, err := app.NewDetector(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to create detector: %v", err)
	}
	log.Infof("Reading packets from '%s'...", pcapFilePath)

	snap, err := d.Replay(context.Background(), pcapFilePath)
	if cerr := d.Close(); cerr != nil {
		log.WithError(cerr).Warn("Shutdown reported errors")
	}
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
	if err := app.PrintSnapshot(os.Stdout, snap); err != nil {
		log.Fatal(err)
	}
}
