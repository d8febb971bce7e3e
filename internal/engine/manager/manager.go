package manager

import (
	"Go2NetIDS/internal/engine/buffer"
	"Go2NetIDS/internal/engine/classify"
	"Go2NetIDS/internal/engine/features"
	"Go2NetIDS/internal/engine/record"
	"Go2NetIDS/internal/engine/stats"
	"Go2NetIDS/internal/engine/tracker"
	"Go2NetIDS/internal/metrics"
	"Go2NetIDS/internal/model"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrAlreadyRunning = errors.New("detector is already running")
	ErrNotRunning     = errors.New("detector is not running")
)

// State is the lifecycle state of the detector.
type State int32

const (
	Stopped State = iota
	Running
	Draining
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return "stopped"
	}
}

// Reporter receives detections and period summaries. Calls are made from the
// processing goroutine and must not block.
type Reporter interface {
	Report(d model.Detection)
	Summarize(s stats.Summary)
}

// EvidenceSink keeps the raw frames of anomalous packets.
type EvidenceSink interface {
	Enqueue(pkt *model.Packet)
}

// Config tunes the pipeline.
type Config struct {
	QueueCapacity   int
	BatchSize       int
	PollInterval    time.Duration
	SummaryInterval time.Duration
	SkipInternal    bool

	Tracker    tracker.Config
	TimeWindow time.Duration
	HostWindow int

	// ScalerPath receives the scaler statistics on every stop.
	ScalerPath string
}

func (c *Config) applyDefaults() {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = buffer.DefaultCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = 180 * time.Second
	}
}

// Deps are the collaborators of the pipeline. Only Stage is required.
type Deps struct {
	Stage    *classify.Stage
	Writer   record.Writer
	Reporter Reporter
	Evidence EvidenceSink
}

// Manager owns the capture and processing goroutines of one detector and
// drives the Stopped -> Running -> Draining -> Stopped lifecycle.
type Manager struct {
	cfg      Config
	deps     Deps
	counters *stats.Counters
	now      func() time.Time

	mu    sync.Mutex
	state State
	run   *run
	last  *run
}

// run holds the resources of one Start/Stop cycle.
type run struct {
	source     model.Source
	queue      *buffer.Queue[*model.Packet]
	tracker    *tracker.Tracker
	aggregator *features.Aggregator
	startedAt  time.Time

	stopCapture context.CancelFunc
	captureDone chan struct{}
	captureErr  error

	drain          context.CancelFunc
	drainCtx       context.Context
	processingDone chan struct{}
	stopped        chan struct{}
	processed      uint64
	lastSummary    time.Time
}

// New creates a stopped manager.
func New(cfg Config, deps Deps) *Manager {
	cfg.applyDefaults()
	if deps.Stage == nil {
		deps.Stage = classify.NewStage(nil, nil, 0)
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		counters: stats.NewCounters(time.Now()),
		now:      time.Now,
	}
}

// Counters returns the live traffic counters.
func (m *Manager) Counters() *stats.Counters {
	return m.counters
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status is a read-only view of the detector.
type Status struct {
	State       string    `json:"state"`
	Source      string    `json:"source,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	Uptime      string    `json:"uptime,omitempty"`
	QueueLen    int       `json:"queue_len"`
	QueueCap    int       `json:"queue_cap"`
	Dropped     uint64    `json:"dropped_packets"`
	Connections int       `json:"connections"`
	Evicted     uint64    `json:"evicted_connections"`
	Latest      string    `json:"latest_connection,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Status reports the state of the current run, or of the last one when
// stopped.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: m.state.String(), QueueCap: m.cfg.QueueCapacity}
	r := m.run
	if r == nil {
		r = m.last
	}
	if r == nil {
		return st
	}
	st.Source = r.source.Name()
	st.StartedAt = r.startedAt
	if m.run != nil {
		st.Uptime = m.now().Sub(r.startedAt).Round(time.Second).String()
	}
	st.QueueLen = r.queue.Len()
	st.Dropped = r.queue.Dropped()
	st.Connections = r.tracker.Len()
	st.Evicted = r.tracker.Evicted()
	if conn, ok := r.tracker.Latest(); ok {
		st.Latest = conn.Key.String()
	}
	if r.captureErr != nil {
		st.LastError = r.captureErr.Error()
	}
	return st
}

// Start opens src and launches the capture and processing goroutines. A
// source that fails to open leaves the manager stopped.
func (m *Manager) Start(ctx context.Context, src model.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Stopped {
		return ErrAlreadyRunning
	}
	if err := src.Open(); err != nil {
		return fmt.Errorf("failed to open capture source %s: %w", src.Name(), err)
	}

	tr := tracker.New(m.cfg.Tracker)
	now := m.now()
	r := &run{
		source:         src,
		queue:          buffer.New[*model.Packet](m.cfg.QueueCapacity),
		tracker:        tr,
		aggregator:     features.NewAggregator(tr, m.cfg.TimeWindow, m.cfg.HostWindow),
		startedAt:      now,
		captureDone:    make(chan struct{}),
		processingDone: make(chan struct{}),
		stopped:        make(chan struct{}),
		lastSummary:    now,
	}
	var captureCtx context.Context
	captureCtx, r.stopCapture = context.WithCancel(ctx)
	r.drainCtx, r.drain = context.WithCancel(context.Background())
	// Totals and history span every run of the process; only the
	// reporting period restarts.
	m.counters.StartPeriod(now)

	go m.capture(captureCtx, r)
	go m.process(r)
	go func() {
		// A source that ends on its own (end of file, broken feed) stops
		// the detector the same way an explicit Stop does.
		<-r.captureDone
		if err := m.stopRun(r); err != nil && !errors.Is(err, ErrNotRunning) {
			log.WithError(err).Error("Failed to stop detector after capture ended")
		}
	}()

	m.state = Running
	m.run = r
	log.WithField("source", src.Name()).Info("Detector started")
	return nil
}

// Stop halts capture, drains the queue and waits for the processing
// goroutine. Once it returns no further packet is processed.
func (m *Manager) Stop() error {
	m.mu.Lock()
	r := m.run
	m.mu.Unlock()
	if r == nil {
		return ErrNotRunning
	}
	return m.stopRun(r)
}

// Done returns a channel closed when the current (or last) run has fully
// stopped. It is nil before the first Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run != nil {
		return m.run.stopped
	}
	if m.last != nil {
		return m.last.stopped
	}
	return nil
}

func (m *Manager) stopRun(r *run) error {
	m.mu.Lock()
	if m.run != r || m.state != Running {
		m.mu.Unlock()
		if m.run == r || m.last == r {
			// Someone else is stopping this run; it is stopped once they finish.
			<-r.stopped
			return nil
		}
		return ErrNotRunning
	}
	m.state = Draining
	m.mu.Unlock()

	log.WithField("queued", r.queue.Len()).Info("Detector stopping, draining queue")
	r.stopCapture()
	<-r.captureDone
	if err := r.source.Close(); err != nil {
		log.WithError(err).Warn("Failed to close capture source")
	}
	r.drain()
	<-r.processingDone

	m.finalize(r)

	m.mu.Lock()
	m.state = Stopped
	m.run = nil
	m.last = r
	m.mu.Unlock()
	close(r.stopped)
	return nil
}

// Close stops a running detector and releases the record writer.
func (m *Manager) Close() error {
	if err := m.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	if m.deps.Writer != nil {
		return m.deps.Writer.Close()
	}
	return nil
}

func (m *Manager) capture(ctx context.Context, r *run) {
	defer close(r.captureDone)
	name := r.source.Name()
	err := r.source.Run(ctx, func(pkt *model.Packet) {
		if r.queue.Push(pkt) {
			metrics.PacketsDropped.Inc()
		}
		metrics.PacketsCaptured.WithLabelValues(name).Inc()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).WithField("source", name).Error("Capture ended with error")
		m.mu.Lock()
		r.captureErr = err
		m.mu.Unlock()
	}
}

// process is the consumer loop. It exits once draining has been requested
// and the queue is empty; capture has already stopped at that point so no
// packet queued before Stop is lost.
func (m *Manager) process(r *run) {
	defer close(r.processingDone)
	for {
		batch := r.queue.PopBatch(m.cfg.BatchSize)
		for _, pkt := range batch {
			m.handle(r, pkt)
		}
		metrics.QueueDepth.Set(float64(r.queue.Len()))
		metrics.ConnectionsTracked.Set(float64(r.tracker.Len()))
		m.maybeSummarize(r)

		if len(batch) > 0 {
			continue
		}
		if r.drainCtx.Err() != nil && r.queue.Len() == 0 {
			return
		}
		r.queue.Wait(r.drainCtx, m.cfg.PollInterval)
	}
}

func (m *Manager) handle(r *run, pkt *model.Packet) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("packet", pkt.Summary()).Errorf("Panic while processing packet: %v", rec)
			m.counters.RecordFailed()
			metrics.PacketsProcessed.WithLabelValues(metrics.OutcomeFailed).Inc()
		}
	}()
	r.processed++

	key := r.tracker.Observe(pkt)
	vec, err := r.aggregator.Compute(key)
	if err != nil {
		log.WithError(err).WithField("packet", pkt.Summary()).Warn("Failed to compute features")
		m.counters.RecordFailed()
		metrics.PacketsProcessed.WithLabelValues(metrics.OutcomeFailed).Inc()
		return
	}
	m.counters.RecordPacket(pkt.Timestamp, vec.Protocol, vec.Flag)

	if conn, ok := r.tracker.Get(key); ok && m.cfg.SkipInternal && conn.Internal() {
		m.counters.RecordSkipped()
		metrics.PacketsProcessed.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return
	}

	start := time.Now()
	out, err := m.deps.Stage.Classify(context.Background(), &vec)
	metrics.ClassifyLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, classify.ErrNotClassified) {
			log.WithError(err).WithField("packet", pkt.Summary()).Warn("Failed to classify packet")
		}
		m.counters.RecordUnclassified()
		metrics.PacketsProcessed.WithLabelValues(metrics.OutcomeUnclassified).Inc()
		return
	}

	m.counters.RecordOutcome(pkt.Timestamp, out.Label, pkt.FiveTuple.SrcIP)
	if m.deps.Writer != nil {
		if err := m.deps.Writer.Write(&record.Record{
			Timestamp:  pkt.Timestamp,
			Key:        pkt.FiveTuple,
			Vector:     vec,
			Label:      out.Label,
			Confidence: out.Confidence,
		}); err != nil {
			log.WithError(err).Warn("Failed to persist record")
			metrics.RecordErrors.Inc()
		}
	}

	if !out.IsAnomaly() {
		metrics.PacketsProcessed.WithLabelValues(metrics.OutcomeNormal).Inc()
		log.WithFields(log.Fields{
			"packet":     pkt.Summary(),
			"confidence": out.Confidence,
		}).Debug("Normal traffic")
		return
	}
	metrics.PacketsProcessed.WithLabelValues(metrics.OutcomeAnomaly).Inc()
	if m.deps.Evidence != nil {
		m.deps.Evidence.Enqueue(pkt)
	}
	if m.deps.Reporter != nil {
		m.deps.Reporter.Report(detection(pkt, &vec, out))
	}
}

func detection(pkt *model.Packet, vec *features.Vector, out classify.Outcome) model.Detection {
	named := make(map[string]float64)
	for f := features.Feature(0); f < features.NumFeatures; f++ {
		if f.IsCategorical() {
			continue
		}
		if v := vec.Get(f); v != 0 {
			named[f.String()] = v
		}
	}
	return model.Detection{
		Timestamp:  pkt.Timestamp,
		FiveTuple:  pkt.FiveTuple,
		Protocol:   vec.Protocol,
		Service:    vec.Service,
		Flag:       vec.Flag,
		Confidence: out.Confidence,
		Features:   named,
		Packet:     pkt.Summary(),
	}
}

func (m *Manager) maybeSummarize(r *run) {
	now := m.now()
	if now.Sub(r.lastSummary) < m.cfg.SummaryInterval {
		return
	}
	r.lastSummary = now
	m.emitSummary(now)
}

func (m *Manager) emitSummary(now time.Time) {
	s := m.counters.EndPeriod(now)
	fields := log.Fields{
		"normal":  s.Normal,
		"anomaly": s.Anomaly,
		"period":  s.End.Sub(s.Start).Round(time.Second),
	}
	if s.TopSource.IsValid() {
		fields["top_source"] = s.TopSource.String()
		fields["top_source_count"] = s.TopSourceCount
	}
	log.WithFields(fields).Info("Traffic summary")
	if m.deps.Reporter != nil {
		m.deps.Reporter.Summarize(s)
	}
}

// finalize runs once the processing goroutine has exited.
func (m *Manager) finalize(r *run) {
	now := m.now()
	m.emitSummary(now)

	if m.deps.Writer != nil {
		if err := m.deps.Writer.Flush(); err != nil {
			log.WithError(err).Warn("Failed to flush records")
			metrics.RecordErrors.Inc()
		}
	}
	if sc := m.deps.Stage.Scaler(); sc != nil && m.cfg.ScalerPath != "" {
		switch err := sc.Save(m.cfg.ScalerPath); {
		case err == nil:
			log.WithField("path", m.cfg.ScalerPath).Info("Saved scaler")
		case errors.Is(err, classify.ErrScalerNotFitted):
			log.Warn("Scaler is not fitted, nothing saved")
		default:
			log.WithError(err).Warn("Failed to save scaler")
		}
	}

	elapsed := now.Sub(r.startedAt)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(r.processed) / elapsed.Seconds()
	}
	snap := m.counters.Snapshot()
	log.WithFields(log.Fields{
		"duration":        elapsed.Round(time.Millisecond),
		"processed":       r.processed,
		"packets_per_sec": fmt.Sprintf("%.2f", rate),
		"normal":          snap.Normal,
		"anomaly":         snap.Anomaly,
		"unclassified":    snap.Unclassified,
		"dropped":         r.queue.Dropped(),
		"evicted_conns":   r.tracker.Evicted(),
	}).Info("Detector stopped")
}

// ResetScaler discards the scaler statistics and removes the persisted
// file. With online fitting enabled the scaler refits from new traffic.
func (m *Manager) ResetScaler() error {
	sc := m.deps.Stage.Scaler()
	if sc == nil {
		return errors.New("no scaler configured")
	}
	sc.Reset()
	if m.cfg.ScalerPath == "" {
		return nil
	}
	if err := os.Remove(m.cfg.ScalerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove scaler file: %w", err)
	}
	return nil
}
