package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"Go2NetIDS/internal/capture"
	"Go2NetIDS/internal/engine/manager"
	"Go2NetIDS/internal/engine/stats"
	"Go2NetIDS/internal/model"
	"Go2NetIDS/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	running  bool
	startErr error
	counters *stats.Counters
	resets   int
	started  model.Source
}

func (d *fakeDetector) Start(_ context.Context, src model.Source) error {
	if d.startErr != nil {
		return d.startErr
	}
	if d.running {
		return manager.ErrAlreadyRunning
	}
	d.running, d.started = true, src
	return nil
}

func (d *fakeDetector) Stop() error {
	if !d.running {
		return manager.ErrNotRunning
	}
	d.running = false
	return nil
}

func (d *fakeDetector) Status() manager.Status {
	if d.running {
		return manager.Status{State: manager.Running.String(), Source: "fake"}
	}
	return manager.Status{State: manager.Stopped.String()}
}

func (d *fakeDetector) Counters() *stats.Counters { return d.counters }

func (d *fakeDetector) ResetScaler() error {
	d.resets++
	return nil
}

type nopSource struct{}

func (nopSource) Name() string { return "nop" }
func (nopSource) Open() error { return nil }
func (nopSource) Run(context.Context, func(*model.Packet)) error { return nil }
func (nopSource) Close() error { return nil }

type fakeQuerier struct {
	filter query.AnomalyFilter
	since  time.Time
}

func (q *fakeQuerier) Anomalies(_ context.Context, f query.AnomalyFilter) ([]query.Anomaly, error) {
	q.filter = f
	return []query.Anomaly{{SrcIP: "10.0.0.9", DstPort: 80, Confidence: 0.9}}, nil
}

func (q *fakeQuerier) TopSources(_ context.Context, since time.Time, _ int) ([]query.SourceCount, error) {
	q.since = since
	return nil, nil
}

func (q *fakeQuerier) Close() error { return nil }

var now = time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, d *fakeDetector, opts ...Option) http.Handler {
	t.Helper()
	opts = append([]Option{
		WithClock(func() time.Time { return now }),
		WithInterfaces(func() ([]capture.Interface, error) {
			return []capture.Interface{{Name: "eth0", HasIPv4: true}}, nil
		}),
	}, opts...)
	return NewServer(context.Background(), ":0", d, opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestTrafficAndHistory(t *testing.T) {
	c := stats.NewCounters(now)
	c.RecordPacket(now, "tcp", "S0")
	c.RecordOutcome(now, model.LabelAnomaly, netip.MustParseAddr("10.0.0.9"))
	c.RecordPacket(now, "udp", "SF")
	c.RecordOutcome(now, model.LabelNormal, netip.MustParseAddr("10.0.0.1"))
	h := newTestServer(t, &fakeDetector{counters: c})

	var traffic map[string]any
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/traffic", &traffic))
	assert.EqualValues(t, 2, traffic["total_packets"])
	assert.EqualValues(t, 1, traffic["anomaly_packets"])
	assert.Equal(t, "udp", traffic["protocol_type"])
	assert.Equal(t, "SF", traffic["flag"])
	assert.Equal(t, "stopped", traffic["state"])

	var history []stats.Bucket
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/history", &history))
	require.Len(t, history, stats.HistoryHours)
	last := history[len(history)-1]
	assert.True(t, last.Hour.Equal(now.Truncate(time.Hour)))
	assert.EqualValues(t, 2, last.Total)
}

func TestStartStopLifecycle(t *testing.T) {
	d := &fakeDetector{counters: stats.NewCounters(now)}
	h := newTestServer(t, d, WithSourceFactory(func() (model.Source, error) { return nopSource{}, nil }))

	var st manager.Status
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/detector/start", &st))
	assert.Equal(t, "running", st.State)
	assert.Equal(t, "nop", d.started.Name())

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/v1/detector/start", nil))

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/detector/stop", &st))
	assert.Equal(t, "stopped", st.State)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/v1/detector/stop", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/v1/detector/start", nil))
}

func TestStartErrors(t *testing.T) {
	d := &fakeDetector{counters: stats.NewCounters(now), startErr: errors.New("no such device")}

	h := newTestServer(t, d)
	assert.Equal(t, http.StatusNotImplemented, do(t, h, http.MethodPost, "/api/v1/detector/start", nil))

	h = newTestServer(t, d, WithSourceFactory(func() (model.Source, error) { return nopSource{}, nil }))
	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodPost, "/api/v1/detector/start", &body))
	assert.Equal(t, "no such device", body["error"])
}

func TestInterfacesAndScalerReset(t *testing.T) {
	d := &fakeDetector{counters: stats.NewCounters(now)}
	h := newTestServer(t, d)

	var ifaces []capture.Interface
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/interfaces", &ifaces))
	assert.Equal(t, "eth0", ifaces[0].Name)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/scaler/reset", nil))
	assert.Equal(t, 1, d.resets)
}

func TestAnomalyQueries(t *testing.T) {
	d := &fakeDetector{counters: stats.NewCounters(now)}
	assert.Equal(t, http.StatusNotImplemented, do(t, newTestServer(t, d), http.MethodGet, "/api/v1/anomalies", nil))

	q := &fakeQuerier{}
	h := newTestServer(t, d, WithQuerier(q))

	var rows []query.Anomaly
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/anomalies?src=10.0.0.9&limit=5&since=2024-06-01T00:00:00Z", &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "10.0.0.9", q.filter.SrcIP)
	assert.Equal(t, 5, q.filter.Limit)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), q.filter.Since)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/anomalies?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/anomalies?since=yesterday", nil))

	var top []query.SourceCount
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/anomalies/top-sources", &top))
	assert.Empty(t, top)
	assert.Equal(t, now.Add(-24*time.Hour), q.since)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeDetector{counters: stats.NewCounters(now)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nsids_")
}
