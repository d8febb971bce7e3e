package alerter

import (
	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/engine/stats"
	"Go2NetIDS/internal/metrics"
	"Go2NetIDS/internal/model"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Analyzer produces a markdown analysis of an alert summary.
type Analyzer interface {
	AnalyzeTraffic(ctx context.Context, input string) (string, error)
}

type job struct {
	subject  string
	markdown string
	severity string
	summary  bool
}

// Alerter turns detections into notifications. Report and Summarize never
// block; delivery happens on the dispatcher goroutine started by Start.
type Alerter struct {
	notifier      model.Notifier
	analyzer      Analyzer
	aiTimeout     time.Duration
	minSeverity   Severity
	sendSummaries bool
	limiter       *rate.Limiter

	queue    chan job
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewAlerter creates a new Alerter. analyzer may be nil.
func NewAlerter(cfg *config.AlerterConfig, notifier model.Notifier, analyzer Analyzer) (*Alerter, error) {
	minSev, err := ParseSeverity(cfg.MinSeverity)
	if err != nil {
		return nil, fmt.Errorf("invalid min_severity for alerter: %w", err)
	}
	if cfg.RatePerMinute <= 0 || cfg.Burst <= 0 || cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("alerter rate_per_minute, burst and queue_size must be positive")
	}
	if !cfg.AIAnalysis.Enabled {
		analyzer = nil
	}
	aiTimeout := cfg.AIAnalysis.Timeout.Std()
	if aiTimeout <= 0 {
		aiTimeout = time.Minute
	}
	return &Alerter{
		notifier:      notifier,
		analyzer:      analyzer,
		aiTimeout:     aiTimeout,
		minSeverity:   minSev,
		sendSummaries: cfg.SendSummaries,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60), cfg.Burst),
		queue:         make(chan job, cfg.QueueSize),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start launches the dispatcher.
func (a *Alerter) Start() {
	a.wg.Add(1)
	go a.dispatch()
	log.WithField("min_severity", a.minSeverity).Info("Alerter started")
}

// Stop delivers what is already queued and stops the dispatcher.
func (a *Alerter) Stop() {
	a.once.Do(func() {
		log.Info("Stopping Alerter...")
		close(a.stopChan)
		a.wg.Wait()
	})
}

// Report logs an anomaly and queues a notification when its severity
// reaches the threshold.
func (a *Alerter) Report(d model.Detection) {
	sev, ok := SeverityFor(model.LabelAnomaly, d.Confidence)
	if !ok {
		return
	}
	id := uuid.NewString()
	log.WithFields(log.Fields{
		"alert_id":   id,
		"severity":   sev.String(),
		"src":        d.FiveTuple.SrcIP.String(),
		"dst":        d.FiveTuple.DstIP.String(),
		"protocol":   d.Protocol,
		"service":    d.Service,
		"confidence": fmt.Sprintf("%.2f", d.Confidence),
	}).Warn("Potential intrusion detected")

	if sev < a.minSeverity {
		metrics.Alerts.WithLabelValues(sev.String(), "below_threshold").Inc()
		return
	}
	a.enqueue(job{
		subject:  fmt.Sprintf("[%s] Go2NetIDS intrusion alert from %s", sev, d.FiveTuple.SrcIP),
		markdown: alertMarkdown(id, sev, &d),
		severity: sev.String(),
	})
}

// Summarize mails the period summary when it contains anomalies and
// summaries are enabled.
func (a *Alerter) Summarize(s stats.Summary) {
	if !a.sendSummaries || s.Anomaly == 0 {
		return
	}
	a.enqueue(job{
		subject:  fmt.Sprintf("Go2NetIDS traffic summary (%d anomalies)", s.Anomaly),
		markdown: summaryMarkdown(s),
		severity: "SUMMARY",
		summary:  true,
	})
}

func (a *Alerter) enqueue(j job) {
	select {
	case a.queue <- j:
	default:
		metrics.Alerts.WithLabelValues(j.severity, "dropped").Inc()
		log.WithField("subject", j.subject).Warn("Alert queue full, notification dropped")
	}
}

func (a *Alerter) dispatch() {
	defer a.wg.Done()
	for {
		select {
		case j := <-a.queue:
			a.deliver(j)
		case <-a.stopChan:
			for {
				select {
				case j := <-a.queue:
					a.deliver(j)
				default:
					return
				}
			}
		}
	}
}

func (a *Alerter) deliver(j job) {
	if !j.summary && !a.limiter.Allow() {
		metrics.Alerts.WithLabelValues(j.severity, "rate_limited").Inc()
		log.WithField("subject", j.subject).Debug("Alert rate limited")
		return
	}

	body := toHTML(j.markdown)
	if j.summary {
		if analysis := a.analyze(j.markdown); analysis != "" {
			body += "<hr><h2>AI-Powered Analysis</h2>" + toHTML(analysis)
		}
	}

	if err := a.notifier.Send(j.subject, body); err != nil {
		metrics.Alerts.WithLabelValues(j.severity, "failed").Inc()
		log.WithError(err).WithField("subject", j.subject).Error("Failed to send alert notification")
		return
	}
	metrics.Alerts.WithLabelValues(j.severity, "sent").Inc()
	log.WithField("subject", j.subject).Info("Alert notification sent")
}

func (a *Alerter) analyze(input string) string {
	if a.analyzer == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.aiTimeout)
	defer cancel()
	out, err := a.analyzer.AnalyzeTraffic(ctx, input)
	if err != nil {
		log.WithError(err).Warn("Failed to get AI analysis")
		return ""
	}
	return out
}
