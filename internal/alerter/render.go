package alerter

import (
	"Go2NetIDS/internal/engine/stats"
	"Go2NetIDS/internal/model"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
)

func alertMarkdown(id string, sev Severity, d *model.Detection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Potential intrusion detected: %s\n\n", sev)
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Alert ID | %s |\n", id)
	fmt.Fprintf(&b, "| Time | %s |\n", d.Timestamp.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "| Source | %s:%d |\n", d.FiveTuple.SrcIP, d.FiveTuple.SrcPort)
	fmt.Fprintf(&b, "| Destination | %s:%d |\n", d.FiveTuple.DstIP, d.FiveTuple.DstPort)
	fmt.Fprintf(&b, "| Protocol | %s |\n", d.Protocol)
	fmt.Fprintf(&b, "| Service | %s |\n", d.Service)
	fmt.Fprintf(&b, "| Flag | %s |\n", d.Flag)
	fmt.Fprintf(&b, "| Confidence | %.2f |\n", d.Confidence)

	if len(d.Features) > 0 {
		names := make([]string, 0, len(d.Features))
		for name := range d.Features {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\n## Features\n\n| Feature | Value |\n|---|---|\n")
		for _, name := range names {
			fmt.Fprintf(&b, "| %s | %g |\n", name, d.Features[name])
		}
	}
	fmt.Fprintf(&b, "\nPacket: `%s`\n", d.Packet)
	return b.String()
}

func summaryMarkdown(s stats.Summary) string {
	var b strings.Builder
	b.WriteString("# Traffic summary\n\n")
	fmt.Fprintf(&b, "Period %s to %s\n\n", s.Start.UTC().Format(time.RFC3339), s.End.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Normal packets: %d\n", s.Normal)
	fmt.Fprintf(&b, "- Anomalous packets: %d\n", s.Anomaly)
	if s.TopSource.IsValid() {
		fmt.Fprintf(&b, "- Most frequent anomaly source: %s (%d packets)\n", s.TopSource, s.TopSourceCount)
	}
	return b.String()
}

func toHTML(md string) string {
	return string(markdown.ToHTML([]byte(md), nil, nil))
}
