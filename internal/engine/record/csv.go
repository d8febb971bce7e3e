package record

import (
	"Go2NetIDS/internal/engine/features"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// CSVWriter appends records to a CSV file. The header is written only when
// the file is empty.
type CSVWriter struct {
	file *os.File
	w    *csv.Writer
	row  []string
}

// NewCSVWriter opens path for appending, creating it and its directory if
// needed.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat record file: %w", err)
	}

	cw := &CSVWriter{file: f, w: csv.NewWriter(f), row: make([]string, features.NumFeatures+1)}
	if info.Size() == 0 {
		if err := cw.w.Write(Header()); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write record header: %w", err)
		}
		cw.w.Flush()
		if err := cw.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write record header: %w", err)
		}
	}
	return cw, nil
}

// Write appends one row and flushes it to the file.
func (c *CSVWriter) Write(r *Record) error {
	for f := features.Feature(0); f < features.NumFeatures; f++ {
		c.row[f] = r.Vector.Field(f)
	}
	c.row[features.NumFeatures] = string(r.Label)
	if err := c.w.Write(c.row); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return c.Flush()
}

func (c *CSVWriter) Flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}
	return nil
}

func (c *CSVWriter) Close() error {
	flushErr := c.Flush()
	if err := c.file.Close(); err != nil {
		return fmt.Errorf("failed to close record file: %w", err)
	}
	return flushErr
}
