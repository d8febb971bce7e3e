package record

import (
	"Go2NetIDS/internal/engine/features"
	"Go2NetIDS/internal/model"
	"errors"
	"time"
)

// LabelColumn is the name of the label column following the features.
const LabelColumn = "class"

// Record is one classified packet.
type Record struct {
	Timestamp  time.Time
	Key        model.FiveTuple
	Vector     features.Vector
	Label      model.Label
	Confidence float64
}

// Writer persists records. Implementations are used from a single
// goroutine.
type Writer interface {
	Write(r *Record) error
	Flush() error
	Close() error
}

// Header returns the fixed tabular header: every feature name followed by
// the label column.
func Header() []string {
	return append(features.Names(), LabelColumn)
}

// MultiWriter fans records out to several writers. A failing writer does not
// prevent the others from receiving the record.
type MultiWriter []Writer

func (m MultiWriter) Write(r *Record) error {
	var errs []error
	for _, w := range m {
		if err := w.Write(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiWriter) Flush() error {
	var errs []error
	for _, w := range m {
		if err := w.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiWriter) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
