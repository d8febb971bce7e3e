package classify

import (
	"Go2NetIDS/internal/engine/features"
	"Go2NetIDS/internal/model"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrNotClassified is returned when the stage declines to classify because
// the classifier or a fitted scaler is unavailable.
var ErrNotClassified = errors.New("not classified")

// Outcome is the result of classifying one feature vector.
type Outcome struct {
	Label      model.Label
	Confidence float64
	Prediction model.Prediction
}

// IsAnomaly reports whether the outcome is an anomaly.
func (o Outcome) IsAnomaly() bool {
	return o.Label == model.LabelAnomaly
}

// Stage aligns, scales and classifies feature vectors.
type Stage struct {
	classifier model.Classifier
	scaler     *Scaler
	expected   []string
	timeout    time.Duration

	// warned limits the fail-closed warning to once per unfitted period.
	warned atomic.Bool
}

// NewStage builds a stage. Either collaborator may be nil, in which case
// every call fails closed.
func NewStage(classifier model.Classifier, scaler *Scaler, timeout time.Duration) *Stage {
	s := &Stage{classifier: classifier, scaler: scaler, timeout: timeout}
	if classifier != nil {
		s.expected = classifier.FeatureNames()
	}
	return s
}

// FeatureNames returns the classifier's expected feature order.
func (s *Stage) FeatureNames() []string {
	return append([]string(nil), s.expected...)
}

// Scaler returns the stage's scaler, possibly nil.
func (s *Stage) Scaler() *Scaler {
	return s.scaler
}

// Classify projects vec onto the classifier's features, standardises it and
// asks the classifier for a label.
func (s *Stage) Classify(ctx context.Context, vec features.Lookup) (Outcome, error) {
	if s.classifier == nil || s.scaler == nil {
		s.warnOnce("no classifier or scaler loaded, classification disabled")
		return Outcome{}, ErrNotClassified
	}

	aligned := features.Align(vec, s.expected)
	s.scaler.Observe(aligned.Values)
	scaled, err := s.scaler.Transform(aligned.Values)
	if errors.Is(err, ErrScalerNotFitted) {
		s.warnOnce(fmt.Sprintf("scaler not fitted (%d samples), classification disabled", s.scaler.Samples()))
		return Outcome{}, ErrNotClassified
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to scale features: %w", err)
	}
	s.warned.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	pred, err := s.classifier.Predict(ctx, scaled)
	if err != nil {
		return Outcome{}, fmt.Errorf("classifier predict failed: %w", err)
	}
	return Outcome{
		Label:      pred.Label,
		Confidence: pred.Confidence(),
		Prediction: pred,
	}, nil
}

func (s *Stage) warnOnce(msg string) {
	if s.warned.CompareAndSwap(false, true) {
		log.WithField("component", "classify").Warn(msg)
		return
	}
	log.WithField("component", "classify").Debug(msg)
}
