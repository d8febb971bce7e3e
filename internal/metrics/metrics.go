package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels of PacketsProcessed.
const (
	OutcomeNormal       = "normal"
	OutcomeAnomaly      = "anomaly"
	OutcomeUnclassified = "unclassified"
	OutcomeSkipped      = "skipped"
	OutcomeFailed       = "failed"
)

var (
	PacketsCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nsids_packets_captured_total",
		Help: "Packets handed to the processing queue",
	}, []string{"source"})

	PacketsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nsids_packets_dropped_total",
		Help: "Packets evicted from a full processing queue",
	})

	ParseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nsids_parse_errors_total",
		Help: "Captured frames that could not be decoded",
	}, []string{"source"})

	PacketsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nsids_packets_processed_total",
		Help: "Processed packets by classification outcome",
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nsids_queue_depth",
		Help: "Packets waiting in the processing queue",
	})

	ConnectionsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nsids_connections_tracked",
		Help: "Connections currently held by the tracker",
	})

	ClassifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nsids_classify_duration_seconds",
		Help:    "Time spent aligning, scaling and classifying one vector",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
	})

	RecordErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nsids_record_errors_total",
		Help: "Failed writes to the record sinks",
	})

	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nsids_alerts_total",
		Help: "Alerts by severity and delivery result",
	}, []string{"severity", "result"})

	EvidenceDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nsids_evidence_dropped_total",
		Help: "Anomalous frames not written to the evidence file",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
