package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"Go2NetIDS/internal/engine/stats"
	"Go2NetIDS/pkg/pcap"
)

// Replay runs the detector over a capture file until it is exhausted or ctx
// is cancelled, and returns the final counters.
func (d *Detector) Replay(ctx context.Context, path string) (stats.Snapshot, error) {
	d.cfg.Capture.Source = "file"
	d.cfg.Capture.File = path
	src, err := d.NewSource()
	if err != nil {
		return stats.Snapshot{}, err
	}
	if r, ok := src.(*pcap.Reader); ok {
		r.Pace(d.queueBusy)
	}
	if err := d.Start(ctx, src); err != nil {
		return stats.Snapshot{}, err
	}

	select {
	case <-d.Done():
	case <-ctx.Done():
		if err := d.Stop(); err != nil {
			return d.Counters().Snapshot(), err
		}
	}
	return d.Counters().Snapshot(), nil
}

// queueBusy reports whether the processing queue is at least 90% full.
func (d *Detector) queueBusy() bool {
	st := d.Status()
	return st.QueueCap > 0 && st.QueueLen*10 >= st.QueueCap*9
}

// PrintSnapshot writes the counters as an aligned table.
func PrintSnapshot(w io.Writer, s stats.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total packets\t%d\n", s.Total)
	fmt.Fprintf(tw, "Normal\t%d\n", s.Normal)
	fmt.Fprintf(tw, "Anomaly\t%d\n", s.Anomaly)
	fmt.Fprintf(tw, "Unclassified\t%d\n", s.Unclassified)
	fmt.Fprintf(tw, "Skipped\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "Failed\t%d\n", s.Failed)
	printDistribution(tw, "Protocol", s.Protocols)
	printDistribution(tw, "Flag", s.Flags)
	return tw.Flush()
}

func printDistribution(w io.Writer, title string, m map[string]uint64) {
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
	for _, k := range keys {
		fmt.Fprintf(w, "%s %s\t%d\n", title, k, m[k])
	}
}
