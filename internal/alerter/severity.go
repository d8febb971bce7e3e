package alerter

import (
	"Go2NetIDS/internal/model"
	"fmt"
	"strings"
)

// Severity ranks an anomaly by classifier confidence.
type Severity int

const (
	Low Severity = iota
	Medium
	High
)

func (s Severity) String() string {
	switch s {
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// ParseSeverity accepts LOW, MEDIUM or HIGH in any case.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return Low, nil
	case "MEDIUM":
		return Medium, nil
	case "HIGH":
		return High, nil
	}
	return Low, fmt.Errorf("unknown severity %q", s)
}

// SeverityFor maps a classification to a severity. Only anomalies have one.
func SeverityFor(label model.Label, confidence float64) (Severity, bool) {
	if label != model.LabelAnomaly {
		return Low, false
	}
	switch {
	case confidence > 0.8:
		return High, true
	case confidence > 0.6:
		return Medium, true
	default:
		return Low, true
	}
}
