package classify

import (
	"Go2NetIDS/internal/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ForestClassifier evaluates a random forest exported as JSON. Each tree
// votes with the normalised class distribution of the leaf it reaches and
// the forest averages the votes.
type ForestClassifier struct {
	features []string
	classes  []model.Label
	trees    []Tree
}

type forestFile struct {
	Features []string `json:"features"`
	Classes  []string `json:"classes"`
	Trees    []Tree   `json:"trees"`
}

// Tree is one decision tree. Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a split when Left is non-negative, otherwise a leaf carrying
// per-class weights in Value.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

// LoadForest reads a forest model from path.
func LoadForest(path string) (*ForestClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var f forestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	return NewForest(f.Features, f.Classes, f.Trees)
}

// NewForest validates and builds a forest.
func NewForest(features, classes []string, trees []Tree) (*ForestClassifier, error) {
	if len(features) == 0 {
		return nil, errors.New("forest model has no features")
	}
	if len(classes) == 0 {
		return nil, errors.New("forest model has no classes")
	}
	if len(trees) == 0 {
		return nil, errors.New("forest model has no trees")
	}
	for ti, t := range trees {
		if len(t.Nodes) == 0 {
			return nil, fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Left < 0 {
				if len(n.Value) != len(classes) {
					return nil, fmt.Errorf("tree %d leaf %d: %d values for %d classes", ti, ni, len(n.Value), len(classes))
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= len(features) {
				return nil, fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left >= len(t.Nodes) || n.Right < 0 || n.Right >= len(t.Nodes) || n.Left <= ni || n.Right <= ni {
				return nil, fmt.Errorf("tree %d node %d: invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}
	labels := make([]model.Label, len(classes))
	for i, c := range classes {
		labels[i] = model.Label(c)
	}
	return &ForestClassifier{
		features: append([]string(nil), features...),
		classes:  labels,
		trees:    trees,
	}, nil
}

// FeatureNames implements model.Classifier.
func (f *ForestClassifier) FeatureNames() []string {
	return append([]string(nil), f.features...)
}

// Predict implements model.Classifier.
func (f *ForestClassifier) Predict(_ context.Context, x []float64) (model.Prediction, error) {
	if len(x) != len(f.features) {
		return model.Prediction{}, fmt.Errorf("forest expects %d features, got %d", len(f.features), len(x))
	}
	votes := make([]float64, len(f.classes))
	for i := range f.trees {
		leaf := f.trees[i].leaf(x)
		var total float64
		for _, w := range leaf {
			total += w
		}
		if total == 0 {
			continue
		}
		for c, w := range leaf {
			votes[c] += w / total
		}
	}

	pred := model.Prediction{Probabilities: make(map[model.Label]float64, len(f.classes))}
	best := -1.0
	for c, v := range votes {
		p := v / float64(len(f.trees))
		pred.Probabilities[f.classes[c]] = p
		if p > best {
			best = p
			pred.Label = f.classes[c]
		}
	}
	return pred, nil
}

// leaf walks the tree; children always follow their parent so the walk
// terminates.
func (t *Tree) leaf(x []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
