package stats

import (
	"Go2NetIDS/internal/model"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func TestCounters_SnapshotAndPeriod(t *testing.T) {
	c := NewCounters(t0)
	attacker := netip.MustParseAddr("203.0.113.7")
	other := netip.MustParseAddr("198.51.100.1")

	for i := 0; i < 5; i++ {
		c.RecordPacket(t0, "tcp", "S0")
		c.RecordOutcome(t0, model.LabelAnomaly, attacker)
	}
	c.RecordPacket(t0, "tcp", "SF")
	c.RecordOutcome(t0, model.LabelAnomaly, other)
	c.RecordPacket(t0, "udp", "SF")
	c.RecordOutcome(t0, model.LabelNormal, other)
	c.RecordUnclassified()
	c.RecordFailed()
	c.RecordSkipped()

	s := c.Snapshot()
	assert.EqualValues(t, 7, s.Total)
	assert.EqualValues(t, 1, s.Normal)
	assert.EqualValues(t, 6, s.Anomaly)
	assert.EqualValues(t, 1, s.Unclassified)
	assert.EqualValues(t, 1, s.Failed)
	assert.EqualValues(t, 1, s.Skipped)
	assert.Equal(t, "udp", s.LatestProtocol)
	assert.Equal(t, "SF", s.LatestFlag)
	assert.Equal(t, map[string]uint64{"tcp": 6, "udp": 1}, s.Protocols)

	sum := c.EndPeriod(t0.Add(3 * time.Minute))
	assert.Equal(t, t0, sum.Start)
	assert.EqualValues(t, 1, sum.Normal)
	assert.EqualValues(t, 6, sum.Anomaly)
	assert.Equal(t, attacker, sum.TopSource)
	assert.EqualValues(t, 5, sum.TopSourceCount)

	next := c.EndPeriod(t0.Add(6 * time.Minute))
	assert.Zero(t, next.Anomaly)
	assert.False(t, next.TopSource.IsValid())
	assert.EqualValues(t, 7, c.Snapshot().Total, "period reset keeps totals")
}

func TestCounters_StartPeriodKeepsTotals(t *testing.T) {
	c := NewCounters(t0)
	c.RecordPacket(t0, "tcp", "S0")
	c.RecordOutcome(t0, model.LabelAnomaly, netip.MustParseAddr("203.0.113.7"))

	c.StartPeriod(t0.Add(time.Minute))
	c.RecordPacket(t0.Add(2*time.Minute), "tcp", "SF")
	c.RecordOutcome(t0.Add(2*time.Minute), model.LabelNormal, netip.Addr{})

	sum := c.EndPeriod(t0.Add(3 * time.Minute))
	assert.Equal(t, t0.Add(time.Minute), sum.Start)
	assert.EqualValues(t, 1, sum.Normal)
	assert.Zero(t, sum.Anomaly)
	assert.False(t, sum.TopSource.IsValid())

	s := c.Snapshot()
	assert.EqualValues(t, 2, s.Total)
	assert.EqualValues(t, 1, s.Anomaly)
	assert.EqualValues(t, 2, c.History(t0)[HistoryHours-1].Total)
}

func TestCounters_SnapshotIsCopy(t *testing.T) {
	c := NewCounters(t0)
	c.RecordPacket(t0, "tcp", "SF")
	s := c.Snapshot()
	s.Protocols["tcp"] = 100
	assert.EqualValues(t, 1, c.Snapshot().Protocols["tcp"])
}

func TestCounters_TopDistributions(t *testing.T) {
	c := NewCounters(t0)
	for i, flag := range []string{"SF", "S0", "REJ", "RSTO", "RSTR", "SH", "OTH"} {
		for j := 0; j <= i; j++ {
			c.RecordPacket(t0, "tcp", flag)
		}
	}
	flags := c.Snapshot().Flags
	assert.Len(t, flags, 5)
	assert.NotContains(t, flags, "SF")
	assert.NotContains(t, flags, "S0")
	assert.EqualValues(t, 7, flags["OTH"])
}

func TestCounters_History(t *testing.T) {
	c := NewCounters(t0)
	c.RecordPacket(t0.Add(-2*time.Hour), "tcp", "SF")
	c.RecordOutcome(t0.Add(-2*time.Hour), model.LabelNormal, netip.Addr{})
	c.RecordPacket(t0, "tcp", "SF")
	c.RecordPacket(t0, "tcp", "S0")
	c.RecordOutcome(t0, model.LabelAnomaly, netip.MustParseAddr("10.0.0.1"))
	// 25 hours earlier shares a ring slot with the previous hour and must not leak.
	c.RecordPacket(t0.Add(-25*time.Hour), "udp", "SF")

	h := c.History(t0)
	assert.Len(t, h, HistoryHours)
	last := h[HistoryHours-1]
	assert.Equal(t, t0.Truncate(time.Hour), last.Hour)
	assert.EqualValues(t, 2, last.Total)
	assert.EqualValues(t, 1, last.Anomaly)
	assert.EqualValues(t, 1, h[HistoryHours-3].Normal)
	assert.Zero(t, h[HistoryHours-2].Total)
	assert.Equal(t, t0.Truncate(time.Hour).Add(-23*time.Hour), h[0].Hour)
}
