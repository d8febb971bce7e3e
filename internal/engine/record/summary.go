package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"Go2NetIDS/internal/engine/features"
	"Go2NetIDS/internal/engine/stats"
	"Go2NetIDS/internal/model"
)

// Summary condenses a record file for reporting.
type Summary struct {
	Total     uint64
	Normal    uint64
	Anomaly   uint64
	Protocols map[string]uint64 // top 5
	Flags     map[string]uint64 // top 5
}

// SummarizeCSV reads a file written by CSVWriter. Files may have been
// appended to by several runs; repeated header rows are skipped.
func SummarizeCSV(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read record header: %w", err)
	}
	protoCol := slices.Index(header, features.ProtocolType.String())
	flagCol := slices.Index(header, features.Flag.String())
	labelCol := slices.Index(header, LabelColumn)
	if protoCol < 0 || flagCol < 0 || labelCol < 0 {
		return Summary{}, errors.New("record file lacks protocol_type, flag or class columns")
	}

	protocols := map[string]uint64{}
	flags := map[string]uint64{}
	var s Summary
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("failed to read record: %w", err)
		}
		if row[labelCol] == LabelColumn {
			continue
		}
		s.Total++
		switch model.Label(row[labelCol]) {
		case model.LabelAnomaly:
			s.Anomaly++
		case model.LabelNormal:
			s.Normal++
		}
		protocols[row[protoCol]]++
		flags[row[flagCol]]++
	}
	s.Protocols = stats.Top(protocols, 5)
	s.Flags = stats.Top(flags, 5)
	return s, nil
}

// String renders the summary as the plain-text report fed to the analyzer.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total packets: %d\n", s.Total)
	fmt.Fprintf(&b, "Normal packets: %d\n", s.Normal)
	fmt.Fprintf(&b, "Anomalous packets: %d\n", s.Anomaly)
	writeDistribution(&b, "Protocol distribution", s.Protocols)
	writeDistribution(&b, "Connection flag distribution", s.Flags)
	return b.String()
}

func writeDistribution(b *strings.Builder, title string, m map[string]uint64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(b, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %d\n", k, m[k])
	}
}
