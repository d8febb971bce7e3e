package model

import "context"

// Label is the class predicted for a feature vector.
type Label string

const (
	LabelNormal  Label = "normal"
	LabelAnomaly Label = "anomaly"
)

// Prediction is the result of a single classification.
type Prediction struct {
	Label         Label
	Probabilities map[Label]float64
}

// Confidence returns the probability assigned to the predicted label.
func (p Prediction) Confidence() float64 {
	return p.Probabilities[p.Label]
}

// Classifier defines the contract of a pluggable binary classifier.
type Classifier interface {
	// FeatureNames returns the ordered feature names the model expects.
	FeatureNames() []string

	// Predict classifies an already aligned and scaled feature vector.
	Predict(ctx context.Context, features []float64) (Prediction, error)
}
