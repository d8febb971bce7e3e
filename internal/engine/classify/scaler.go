package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
)

// ErrScalerNotFitted is returned by Transform before the scaler has
// statistics to apply.
var ErrScalerNotFitted = errors.New("scaler is not fitted")

// Scaler standardises features as (x - mean) / scale. It is either loaded
// already fitted, or fitted online from the first samples it observes.
type Scaler struct {
	mu sync.RWMutex

	names []string
	mean  []float64
	scale []float64

	// Welford accumulators used while fitting online.
	m2         []float64
	samples    uint64
	minSamples uint64
	fitted     bool
}

type scalerFile struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
	Samples  uint64    `json:"samples"`
}

// NewScaler returns an unfitted scaler for names. It becomes usable after
// minSamples calls to Observe; minSamples of 0 keeps it unfitted forever.
func NewScaler(names []string, minSamples int) *Scaler {
	n := len(names)
	return &Scaler{
		names:      append([]string(nil), names...),
		mean:       make([]float64, n),
		scale:      make([]float64, n),
		m2:         make([]float64, n),
		minSamples: uint64(max(minSamples, 0)),
	}
}

// LoadScaler reads a fitted scaler from path and orders its statistics by
// names. Features missing from the file pass through unscaled.
func LoadScaler(path string, names []string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler file: %w", err)
	}
	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scaler file: %w", err)
	}
	if len(f.Mean) != len(f.Features) || len(f.Scale) != len(f.Features) {
		return nil, fmt.Errorf("scaler file %s: %d features, %d means, %d scales", path, len(f.Features), len(f.Mean), len(f.Scale))
	}

	index := make(map[string]int, len(f.Features))
	for i, name := range f.Features {
		index[name] = i
	}
	s := NewScaler(names, 0)
	for i, name := range names {
		j, ok := index[name]
		if !ok {
			s.scale[i] = 1
			continue
		}
		s.mean[i] = f.Mean[j]
		s.scale[i] = f.Scale[j]
	}
	s.samples = f.Samples
	s.fitted = true
	return s, nil
}

// Save writes the fitted statistics to path. An unfitted scaler is not
// written.
func (s *Scaler) Save(path string) error {
	s.mu.RLock()
	if !s.fitted {
		s.mu.RUnlock()
		return ErrScalerNotFitted
	}
	data, err := json.MarshalIndent(scalerFile{
		Features: s.names,
		Mean:     s.mean,
		Scale:    s.scale,
		Samples:  s.samples,
	}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode scaler: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scaler file: %w", err)
	}
	return nil
}

// FitOnline enables online fitting after a Reset or for an unfitted scaler.
func (s *Scaler) FitOnline(minSamples int) {
	s.mu.Lock()
	s.minSamples = uint64(max(minSamples, 0))
	s.mu.Unlock()
}

// Fitted reports whether Transform can be used.
func (s *Scaler) Fitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// Samples returns the number of samples the statistics are based on.
func (s *Scaler) Samples() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples
}

// Observe feeds one aligned sample into online fitting. It is a no-op once
// the scaler is fitted or when online fitting is disabled.
func (s *Scaler) Observe(x []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fitted || s.minSamples == 0 || len(x) != len(s.mean) {
		return
	}
	s.samples++
	n := float64(s.samples)
	for i, v := range x {
		delta := v - s.mean[i]
		s.mean[i] += delta / n
		s.m2[i] += delta * (v - s.mean[i])
	}
	if s.samples < s.minSamples {
		return
	}
	for i := range s.scale {
		s.scale[i] = math.Sqrt(s.m2[i] / n)
	}
	s.fitted = true
}

// Transform returns the standardised copy of x. Zero-variance features are
// only centred.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.fitted {
		return nil, ErrScalerNotFitted
	}
	if len(x) != len(s.mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.mean[i]) / scale
	}
	return out, nil
}

// Reset discards all statistics and restarts online fitting.
func (s *Scaler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mean {
		s.mean[i], s.scale[i], s.m2[i] = 0, 0, 0
	}
	s.samples = 0
	s.fitted = false
}
