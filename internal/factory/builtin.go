package factory

import (
	"context"
	"errors"
	"io"

	"Go2NetIDS/internal/capture"
	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/engine/classify"
	"Go2NetIDS/internal/model"
	"Go2NetIDS/internal/probe"
	"Go2NetIDS/pkg/pcap"
)

func init() {
	RegisterClassifier("forest", func(_ context.Context, cfg *config.Config) (model.Classifier, io.Closer, error) {
		f, err := classify.LoadForest(cfg.Classifier.ModelPath)
		return f, nil, err
	})
	RegisterClassifier("remote", func(ctx context.Context, cfg *config.Config) (model.Classifier, io.Closer, error) {
		r, err := classify.DialRemote(ctx, cfg.Classifier.RemoteAddr)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	})

	RegisterSource("live", func(cfg *config.Config, keepRaw bool) (model.Source, error) {
		return capture.NewLiveSource(cfg.Capture, keepRaw), nil
	})
	RegisterSource("nats", func(cfg *config.Config, _ bool) (model.Source, error) {
		return probe.NewSubscriber(cfg.Probe), nil
	})
	RegisterSource("file", func(cfg *config.Config, keepRaw bool) (model.Source, error) {
		if cfg.Capture.File == "" {
			return nil, errors.New("capture.file is required for the file source")
		}
		return pcap.NewReader(cfg.Capture.File, keepRaw), nil
	})
}
