package stats

import (
	"Go2NetIDS/internal/model"
	"net/netip"
	"sort"
	"sync"
	"time"
)

// HistoryHours is the length of the hourly histogram.
const HistoryHours = 24

// topN bounds the protocol and flag distributions reported in snapshots.
const topN = 5

// Bucket holds the totals of one hour.
type Bucket struct {
	Hour    time.Time `json:"hour"`
	Total   uint64    `json:"total_packets"`
	Normal  uint64    `json:"normal_packets"`
	Anomaly uint64    `json:"anomaly_packets"`
}

// Snapshot is a copy of the live counters.
type Snapshot struct {
	Total          uint64            `json:"total_packets"`
	Normal         uint64            `json:"normal_packets"`
	Anomaly        uint64            `json:"anomaly_packets"`
	Unclassified   uint64            `json:"unclassified_packets"`
	Failed         uint64            `json:"failed_packets"`
	Skipped        uint64            `json:"skipped_packets"`
	LatestProtocol string            `json:"protocol_type"`
	LatestFlag     string            `json:"flag"`
	Protocols      map[string]uint64 `json:"protocol_types"`
	Flags          map[string]uint64 `json:"flags"`
}

// Summary describes one reporting period.
type Summary struct {
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	Normal         uint64     `json:"normal_packets"`
	Anomaly        uint64     `json:"anomaly_packets"`
	TopSource      netip.Addr `json:"top_source"`
	TopSourceCount uint64     `json:"top_source_count"`
}

// Counters aggregates traffic totals, per-period counts and the hourly
// histogram. All methods are safe for concurrent use.
type Counters struct {
	mu sync.Mutex

	snap Snapshot

	periodStart   time.Time
	periodNormal  uint64
	periodAnomaly uint64
	sources       map[netip.Addr]uint64

	hours [HistoryHours]Bucket
}

// NewCounters returns zeroed counters whose first period starts at start.
func NewCounters(start time.Time) *Counters {
	c := &Counters{}
	c.reset(start)
	return c
}

func (c *Counters) reset(start time.Time) {
	c.snap = Snapshot{
		Protocols: make(map[string]uint64),
		Flags:     make(map[string]uint64),
	}
	c.periodStart = start
	c.periodNormal, c.periodAnomaly = 0, 0
	c.sources = make(map[netip.Addr]uint64)
	c.hours = [HistoryHours]Bucket{}
}

// bucket returns the histogram slot of ts, recycling it when it still holds
// an older hour.
func (c *Counters) bucket(ts time.Time) *Bucket {
	hour := ts.Truncate(time.Hour)
	b := &c.hours[(hour.Unix()/3600)%HistoryHours]
	if !b.Hour.Equal(hour) {
		*b = Bucket{Hour: hour}
	}
	return b
}

// RecordPacket counts a processed packet and remembers its connection's
// protocol and flag as the latest seen.
func (c *Counters) RecordPacket(ts time.Time, protocol, flag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Total++
	c.snap.LatestProtocol = protocol
	c.snap.LatestFlag = flag
	c.snap.Protocols[protocol]++
	c.snap.Flags[flag]++
	c.bucket(ts).Total++
}

// RecordOutcome counts a classified packet.
func (c *Counters) RecordOutcome(ts time.Time, label model.Label, src netip.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.bucket(ts)
	switch label {
	case model.LabelAnomaly:
		c.snap.Anomaly++
		c.periodAnomaly++
		b.Anomaly++
		if src.IsValid() {
			c.sources[src]++
		}
	default:
		c.snap.Normal++
		c.periodNormal++
		b.Normal++
	}
}

// RecordUnclassified counts a packet the classification stage declined.
func (c *Counters) RecordUnclassified() {
	c.mu.Lock()
	c.snap.Unclassified++
	c.mu.Unlock()
}

// RecordFailed counts a packet that could not be processed.
func (c *Counters) RecordFailed() {
	c.mu.Lock()
	c.snap.Failed++
	c.mu.Unlock()
}

// RecordSkipped counts a packet filtered out before classification.
func (c *Counters) RecordSkipped() {
	c.mu.Lock()
	c.snap.Skipped++
	c.mu.Unlock()
}

// Snapshot returns a copy of the totals with the top protocol and flag
// distributions.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	s.Protocols = Top(c.snap.Protocols, topN)
	s.Flags = Top(c.snap.Flags, topN)
	return s
}

// History returns the hourly buckets of the 24 hours ending with ref's
// hour, oldest first. Hours without traffic are zero.
func (c *Counters) History(ref time.Time) []Bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := ref.Truncate(time.Hour)
	out := make([]Bucket, HistoryHours)
	for i := range out {
		hour := end.Add(-time.Duration(HistoryHours-1-i) * time.Hour)
		b := c.hours[(hour.Unix()/3600)%HistoryHours]
		if !b.Hour.Equal(hour) {
			b = Bucket{Hour: hour}
		}
		out[i] = b
	}
	return out
}

// StartPeriod discards the current period without summarising it. Totals
// and the hourly histogram are kept.
func (c *Counters) StartPeriod(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.periodStart = now
	c.periodNormal, c.periodAnomaly = 0, 0
	c.sources = make(map[netip.Addr]uint64)
}

// EndPeriod closes the current period at now, returns its summary and
// starts the next one.
func (c *Counters) EndPeriod(now time.Time) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Summary{
		Start:   c.periodStart,
		End:     now,
		Normal:  c.periodNormal,
		Anomaly: c.periodAnomaly,
	}
	for addr, n := range c.sources {
		if n > s.TopSourceCount || (n == s.TopSourceCount && addr.Less(s.TopSource)) {
			s.TopSource, s.TopSourceCount = addr, n
		}
	}
	c.periodStart = now
	c.periodNormal, c.periodAnomaly = 0, 0
	c.sources = make(map[netip.Addr]uint64)
	return s
}


func Top(m map[string]uint64, n int) map[string]uint64 {
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
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make(map[string]uint64, len(keys))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}
