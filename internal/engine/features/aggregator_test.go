package features

import (
	"Go2NetIDS/internal/engine/tracker"
	"Go2NetIDS/internal/model"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func tcpPacket(src string, sport uint16, dst string, dport uint16, flags model.TCPFlags, at time.Duration) *model.Packet {
	return &model.Packet{
		Timestamp: base.Add(at),
		FiveTuple: model.FiveTuple{
			SrcIP:    netip.MustParseAddr(src),
			DstIP:    netip.MustParseAddr(dst),
			SrcPort:  sport,
			DstPort:  dport,
			Protocol: model.ProtoTCP,
		},
		TCPFlags: flags,
		Length:   60,
	}
}

func TestCompute_ThreeSuccessfulConnections(t *testing.T) {
	tr := tracker.New(tracker.Config{})
	agg := NewAggregator(tr, 0, 0)

	var last model.FiveTuple
	for i := 0; i < 3; i++ {
		last = tr.Observe(tcpPacket("10.0.0.5", uint16(50000+i), "10.0.0.80", 80, model.FlagACK, time.Duration(i)*300*time.Millisecond))
	}

	v, err := agg.Compute(last)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.Get(Count))
	assert.Equal(t, 3.0, v.Get(SrvCount))
	assert.Equal(t, 1.0, v.Get(SameSrvRate))
	assert.Equal(t, 0.0, v.Get(DiffSrvRate))
	assert.Equal(t, 0.0, v.Get(SerrorRate))
	assert.Equal(t, 0.0, v.Get(RerrorRate))
	assert.Equal(t, 3.0, v.Get(DstHostCount))
	assert.Equal(t, 1.0, v.Get(DstHostSameSrvRate))
	assert.Equal(t, "tcp", v.Protocol)
	assert.Equal(t, "http", v.Service)
	assert.Equal(t, "SF", v.Flag)
	assert.Equal(t, 1.0, v.Get(ProtocolType))
}

func TestCompute_SynFlood(t *testing.T) {
	tr := tracker.New(tracker.Config{})
	agg := NewAggregator(tr, 0, 0)

	var last model.FiveTuple
	for i := 0; i < 10; i++ {
		last = tr.Observe(tcpPacket("203.0.113.7", uint16(1024+i), "10.0.0.80", 80, model.FlagSYN, time.Duration(i)*time.Millisecond))
	}

	v, err := agg.Compute(last)
	require.NoError(t, err)
	assert.Equal(t, "S0", v.Flag)
	assert.Equal(t, 10.0, v.Get(Count))
	assert.Equal(t, 1.0, v.Get(SerrorRate))
	assert.Equal(t, 1.0, v.Get(SrvSerrorRate))
	assert.Equal(t, 1.0, v.Get(DstHostSerrorRate))
	assert.Equal(t, 1.0, v.Get(DstHostSrvSerrorRate))
	assert.Equal(t, 0.1, v.Get(DstHostSameSrcPortRate))
	assert.Equal(t, 0.0, v.Get(DstHostSrvDiffHostRate))
}

func TestCompute_MixedServicesAndHosts(t *testing.T) {
	tr := tracker.New(tracker.Config{})
	agg := NewAggregator(tr, 0, 0)

	tr.Observe(tcpPacket("10.0.0.5", 50000, "10.0.0.80", 80, model.FlagACK, 0))
	tr.Observe(tcpPacket("10.0.0.6", 50001, "10.0.0.80", 80, model.FlagACK, 100*time.Millisecond))
	tr.Observe(tcpPacket("10.0.0.5", 50002, "10.0.0.80", 22, model.FlagACK, 200*time.Millisecond))
	tr.Observe(tcpPacket("10.0.0.5", 50003, "10.0.0.81", 80, model.FlagACK, 300*time.Millisecond))
	last := tr.Observe(tcpPacket("10.0.0.5", 50004, "10.0.0.80", 80, model.FlagACK, 400*time.Millisecond))

	v, err := agg.Compute(last)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v.Get(Count))
	assert.Equal(t, 3.0, v.Get(SrvCount))
	assert.Equal(t, 0.75, v.Get(SameSrvRate))
	assert.Equal(t, 0.25, v.Get(DiffSrvRate))
	assert.Equal(t, 0.25, v.Get(SrvDiffHostRate))
	assert.InDelta(t, 1.0/3, v.Get(DstHostSrvDiffHostRate), 1e-9)
}

func TestCompute_TimeWindowExcludesOldConnections(t *testing.T) {
	tr := tracker.New(tracker.Config{})
	agg := NewAggregator(tr, 0, 0)

	tr.Observe(tcpPacket("10.0.0.5", 50000, "10.0.0.80", 80, model.FlagACK, 0))
	last := tr.Observe(tcpPacket("10.0.0.5", 50001, "10.0.0.80", 80, model.FlagACK, 5*time.Second))

	v, err := agg.Compute(last)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Get(Count))
	assert.Equal(t, 2.0, v.Get(DstHostCount))
}

func TestCompute_LandAndBasicFeatures(t *testing.T) {
	tr := tracker.New(tracker.Config{})
	agg := NewAggregator(tr, 0, 0)

	key := tr.Observe(tcpPacket("10.0.0.9", 139, "10.0.0.9", 139, model.FlagSYN, 0))
	v, err := agg.Compute(key)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Get(Land))
	assert.Equal(t, 0.0, v.Get(Duration))
	assert.Equal(t, "netbios_ssn", v.Service)
	for _, f := range []Feature{Hot, NumFailedLogins, LoggedIn, NumRoot, IsGuestLogin} {
		assert.Zero(t, v.Get(f), f.String())
	}
}

func TestCompute_RatesBounded(t *testing.T) {
	tr := tracker.New(tracker.Config{})
	agg := NewAggregator(tr, 0, 0)

	var keys []model.FiveTuple
	flags := []model.TCPFlags{model.FlagSYN, model.FlagACK, model.FlagRST, model.FlagSYN | model.FlagACK, model.FlagFIN}
	for i := 0; i < 60; i++ {
		dst := "10.0.1." + []string{"1", "2", "3"}[i%3]
		keys = append(keys, tr.Observe(tcpPacket("10.0.2.1", uint16(2000+i%7), dst, []uint16{80, 22, 443, 9000}[i%4], flags[i%5], time.Duration(i)*50*time.Millisecond)))
	}

	for _, key := range keys {
		v, err := agg.Compute(key)
		require.NoError(t, err)
		for f := Feature(0); f < NumFeatures; f++ {
			assert.GreaterOrEqual(t, v.Get(f), 0.0, f.String())
			if f.IsRate() {
				assert.LessOrEqual(t, v.Get(f), 1.0, f.String())
			}
		}
	}
}

func TestCompute_UnknownConnection(t *testing.T) {
	agg := NewAggregator(tracker.New(tracker.Config{}), 0, 0)
	_, err := agg.Compute(model.FiveTuple{})
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestSafeRate(t *testing.T) {
	assert.Equal(t, 0.0, safeRate(0, 0))
	assert.Equal(t, 0.0, safeRate(5, 0))
	assert.Equal(t, 0.5, safeRate(1, 2))
}
