package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Go2NetIDS/internal/capture"
	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/logging"
	"Go2NetIDS/internal/model"
	"Go2NetIDS/internal/probe"

	log "github.com/sirupsen/logrus"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	mode := flag.String("mode", "pub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture packets from (defaults to capture.interface).")
	withRaw := flag.Bool("raw", false, "Forward captured frames so the engine can write evidence files.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if closer, err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	} else {
		defer closer.Close()
	}
	if *iface != "" {
		cfg.Capture.Interface = *iface
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "pub":
		err = runProbe(ctx, cfg, *withRaw)
	case "sub":
		err = runSubscriber(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Info("Shutdown complete.")
}

// runProbe captures packets and publishes their metadata to NATS.
func runProbe(ctx context.Context, cfg *config.Config, withRaw bool) error {
	pub, err := probe.NewPublisher(cfg.Probe, withRaw)
	if err != nil {
		return err
	}
	defer pub.Close()

	src := capture.NewLiveSource(cfg.Capture, withRaw)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()
	log.Infof("Publishing packets from %s to '%s'", src.Name(), cfg.Probe.Subject)

	published := 0
	return src.Run(ctx, func(pkt *model.Packet) {
		if err := pub.Publish(pkt); err != nil {
			log.WithError(err).Warn("Failed to publish packet")
			return
		}
		published++
		if published%1000 == 0 {
			log.Infof("%d packets published...", published)
		}
	})
}

// runSubscriber prints the packets published by other probes.
func runSubscriber(ctx context.Context, cfg *config.Config) error {
	sub := probe.NewSubscriber(cfg.Probe)
	if err := sub.Open(); err != nil {
		return err
	}
	defer sub.Close()
	return sub.Run(ctx, func(pkt *model.Packet) {
		fmt.Println(pkt.Summary())
	})
}
