// Package factory builds classifiers and capture sources from configuration.
// Implementations register themselves by type name.
package factory

import (
	"context"
	"fmt"
	"io"
	"sort"

	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/model"

	log "github.com/sirupsen/logrus"
)

// ClassifierFactory creates a classifier. The returned closer, if any,
// releases its resources.
type ClassifierFactory func(ctx context.Context, cfg *config.Config) (model.Classifier, io.Closer, error)

// SourceFactory creates a capture source. keepRaw asks the source to retain
// captured frames.
type SourceFactory func(cfg *config.Config, keepRaw bool) (model.Source, error)

var (
	classifiers = make(map[string]ClassifierFactory)
	sources     = make(map[string]SourceFactory)
)

// RegisterClassifier registers a classifier type.
func RegisterClassifier(name string, f ClassifierFactory) {
	if _, exists := classifiers[name]; exists {
		panic(fmt.Sprintf("classifier type '%s' already registered", name))
	}
	classifiers[name] = f
}

// RegisterSource registers a capture source type.
func RegisterSource(name string, f SourceFactory) {
	if _, exists := sources[name]; exists {
		panic(fmt.Sprintf("source type '%s' already registered", name))
	}
	sources[name] = f
}

// NewClassifier creates the classifier named by cfg.Classifier.Type.
func NewClassifier(ctx context.Context, cfg *config.Config) (model.Classifier, io.Closer, error) {
	f, ok := classifiers[cfg.Classifier.Type]
	if !ok {
		return nil, nil, fmt.Errorf("unknown classifier type: '%s' (known: %v)", cfg.Classifier.Type, names(classifiers))
	}
	log.Infof("Creating classifier of type '%s'", cfg.Classifier.Type)
	c, closer, err := f(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating classifier '%s': %w", cfg.Classifier.Type, err)
	}
	return c, closer, nil
}

// NewSource creates the capture source named by cfg.Capture.Source.
func NewSource(cfg *config.Config, keepRaw bool) (model.Source, error) {
	f, ok := sources[cfg.Capture.Source]
	if !ok {
		return nil, fmt.Errorf("unknown capture source: '%s' (known: %v)", cfg.Capture.Source, names(sources))
	}
	return f(cfg, keepRaw)
}

func names[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
