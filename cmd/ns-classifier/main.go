package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/engine/classify"
	"Go2NetIDS/internal/logging"

	log "github.com/sirupsen/logrus"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	modelPath := flag.String("model", "", "Model file (defaults to classifier.model_path)")
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

	path := cfg.Classifier.ModelPath
	if *modelPath != "" {
		path = *modelPath
	}
	forest, err := classify.LoadForest(path)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}

	lis, err := net.Listen("tcp", cfg.Classifier.ListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	s := classify.NewServer(forest)

	go func() {
		log.WithFields(log.Fields{
			"model":    path,
			"features": len(forest.FeatureNames()),
		}).Infof("Classifier gRPC server starting on %s", lis.Addr())
		if err := s.Serve(lis); err != nil {
			log.Errorf("Failed to serve gRPC: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Classifier server shutting down...")
	s.GracefulStop()
}
