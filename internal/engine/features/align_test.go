package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleVector() *Vector {
	v := &Vector{Protocol: "udp", Service: "domain_u", Flag: "SF"}
	encodeCategoricals(v)
	v.Values[SrcBytes] = 42
	v.Values[Count] = 7
	v.Values[SameSrvRate] = 0.5
	return v
}

func TestAlign_OrderAndZeroFill(t *testing.T) {
	expected := []string{"same_srv_rate", "not_a_feature", "src_bytes", "service_domain_u", "service_http", "protocol_type_udp", "flag_S0", "count"}

	got := Align(sampleVector(), expected)

	assert.Equal(t, expected, got.Names)
	assert.Equal(t, []float64{0.5, 0, 42, 1, 0, 1, 0, 7}, got.Values)
}

func TestAlign_Idempotent(t *testing.T) {
	expected := []string{"count", "flag_SF", "missing", "src_bytes"}

	once := Align(sampleVector(), expected)
	twice := Align(once, expected)

	assert.Equal(t, once, twice)
}

func TestAlign_DoesNotAliasExpected(t *testing.T) {
	expected := []string{"count"}
	got := Align(sampleVector(), expected)
	expected[0] = "src_bytes"
	assert.Equal(t, []string{"count"}, got.Names)
}

func TestSchema(t *testing.T) {
	assert.Len(t, Names(), int(NumFeatures))
	assert.Equal(t, 41, int(NumFeatures))
	assert.Equal(t, "duration", Duration.String())
	assert.Equal(t, "dst_host_srv_rerror_rate", DstHostSrvRerrorRate.String())

	f, ok := ByName("srv_diff_host_rate")
	assert.True(t, ok)
	assert.Equal(t, SrvDiffHostRate, f)
	assert.True(t, f.IsRate())
	assert.False(t, Count.IsRate())
	assert.True(t, Service.IsCategorical())

	v := sampleVector()
	assert.Equal(t, "domain_u", v.Field(Service))
	assert.Equal(t, "42", v.Field(SrcBytes))
}
