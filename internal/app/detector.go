// Package app assembles a detector from configuration for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"Go2NetIDS/internal/ai"
	"Go2NetIDS/internal/alerter"
	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/engine/classify"
	"Go2NetIDS/internal/engine/manager"
	"Go2NetIDS/internal/engine/record"
	"Go2NetIDS/internal/engine/stats"
	"Go2NetIDS/internal/engine/tracker"
	"Go2NetIDS/internal/factory"
	"Go2NetIDS/internal/model"
	"Go2NetIDS/internal/notification"
	"Go2NetIDS/internal/persistent"

	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"
)

const evidenceDrainTimeout = 5 * time.Second

// Detector is a manager together with the collaborators it was built with.
type Detector struct {
	*manager.Manager

	cfg      *config.Config
	alerter  *alerter.Alerter
	evidence *persistent.Worker
	closers  []io.Closer
}

// NewDetector builds the classification stage, record sinks, alerting and
// evidence capture described by cfg. Optional collaborators that fail to
// start are logged and left out; the classifier and the CSV sink are required.
func NewDetector(ctx context.Context, cfg *config.Config) (_ *Detector, err error) {
	d := &Detector{cfg: cfg}
	defer func() {
		if err != nil {
			d.closeAll()
		}
	}()

	classifier, closer, err := factory.NewClassifier(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		d.closers = append(d.closers, closer)
	}
	stage := classify.NewStage(classifier, loadScaler(cfg, classifier.FeatureNames()), cfg.Classifier.Timeout.Std())

	writer, err := d.newWriter()
	if err != nil {
		return nil, err
	}

	var reporter manager.Reporter = logReporter{}
	if cfg.Alerter.Enabled {
		a, err := d.newAlerter()
		if err != nil {
			writer.Close()
			return nil, err
		}
		a.Start()
		d.alerter, reporter = a, a
	}

	var evidence manager.EvidenceSink
	if cfg.Evidence.Enabled {
		// Live and probe sources deliver Ethernet frames.
		w, err := persistent.NewWorker(cfg.Evidence, layers.LinkTypeEthernet)
		if err != nil {
			log.WithError(err).Warn("Evidence capture disabled")
		} else {
			d.evidence, evidence = w, w
		}
	}

	d.Manager = manager.New(manager.Config{
		QueueCapacity:   cfg.Detector.QueueCapacity,
		BatchSize:       cfg.Detector.BatchSize,
		PollInterval:    cfg.Detector.PollInterval.Std(),
		SummaryInterval: cfg.Detector.SummaryInterval.Std(),
		SkipInternal:    cfg.Detector.SkipInternal,
		Tracker: tracker.Config{
			Capacity:    cfg.Tracker.Capacity,
			IdleTimeout: cfg.Tracker.IdleTimeout.Std(),
		},
		TimeWindow: cfg.Tracker.TimeWindow.Std(),
		HostWindow: cfg.Tracker.HostWindow,
		ScalerPath: cfg.Scaler.Path,
	}, manager.Deps{
		Stage:    stage,
		Writer:   writer,
		Reporter: reporter,
		Evidence: evidence,
	})
	return d, nil
}

// loadScaler returns the persisted scaler, an online-fitting one, or nil
// when neither is available. A nil scaler leaves every packet unclassified.
func loadScaler(cfg *config.Config, names []string) *classify.Scaler {
	if cfg.Scaler.Path != "" {
		s, err := classify.LoadScaler(cfg.Scaler.Path, names)
		if err == nil {
			log.WithField("samples", s.Samples()).Infof("Loaded scaler from %s", cfg.Scaler.Path)
			return s
		}
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warn("Failed to load scaler")
		}
	}
	if cfg.Scaler.FitOnline {
		log.Infof("Fitting scaler online from the first %d packets", cfg.Scaler.MinSamples)
		return classify.NewScaler(names, cfg.Scaler.MinSamples)
	}
	log.Warn("No scaler available and online fitting is disabled; packets will not be classified")
	return nil
}

func (d *Detector) newWriter() (record.Writer, error) {
	var writers record.MultiWriter
	if d.cfg.Records.CSVPath != "" {
		w, err := record.NewCSVWriter(d.cfg.Records.CSVPath)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	if ch := d.cfg.Records.ClickHouse; ch.Enabled {
		w, err := record.NewClickHouseWriter(ClickHouseConfig(d.cfg))
		if err != nil {
			log.WithError(err).Warn("ClickHouse records disabled")
		} else {
			writers = append(writers, w)
		}
	}
	return writers, nil
}

// ClickHouseConfig converts the configured record database settings.
func ClickHouseConfig(cfg *config.Config) record.ClickHouseConfig {
	ch := cfg.Records.ClickHouse
	return record.ClickHouseConfig{
		Host:      ch.Host,
		Port:      ch.Port,
		Database:  ch.Database,
		Username:  ch.Username,
		Password:  ch.Password,
		BatchSize: ch.BatchSize,
	}
}

func (d *Detector) newAlerter() (*alerter.Alerter, error) {
	var notifiers []model.Notifier
	if d.cfg.SMTP.Host != "" {
		notifiers = append(notifiers, notification.NewEmailNotifier(d.cfg.SMTP))
	}
	if nc := d.cfg.NATSAlerts; nc.Enabled {
		n, err := notification.NewNATSNotifier(nc.URL, nc.Subject)
		if err != nil {
			log.WithError(err).Warn("NATS alerts disabled")
		} else {
			notifiers = append(notifiers, n)
			d.closers = append(d.closers, n)
		}
	}

	var analyzer alerter.Analyzer
	if d.cfg.Alerter.AIAnalysis.Enabled {
		a, err := ai.NewAnalyzer(&d.cfg.AI)
		if err != nil {
			log.WithError(err).Warn("AI analysis of alerts disabled")
		} else {
			analyzer = a
		}
	}
	return alerter.NewAlerter(&d.cfg.Alerter, notification.Combine(notifiers...), analyzer)
}

// NewSource builds the configured capture source. Frames are retained only
// when evidence capture is running.
func (d *Detector) NewSource() (model.Source, error) {
	return factory.NewSource(d.cfg, d.evidence != nil)
}

// Close stops the detector, flushes the sinks and releases every
// collaborator.
func (d *Detector) Close() error {
	var errs []error
	if d.Manager != nil {
		errs = append(errs, d.Manager.Close())
	}
	errs = append(errs, d.closeAll())
	return errors.Join(errs...)
}

func (d *Detector) closeAll() error {
	var errs []error
	if d.alerter != nil {
		d.alerter.Stop()
	}
	if d.evidence != nil {
		errs = append(errs, d.evidence.Stop(evidenceDrainTimeout))
	}
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %T: %w", c, err))
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// logReporter is used when alerting is disabled.
type logReporter struct{}

func (logReporter) Report(det model.Detection) {
	log.WithFields(log.Fields{
		"connection": det.FiveTuple.String(),
		"service":    det.Service,
		"flag":       det.Flag,
		"confidence": fmt.Sprintf("%.2f", det.Confidence),
	}).Warn("Anomaly detected")
}

func (logReporter) Summarize(s stats.Summary) {
	log.WithFields(log.Fields{
		"normal":     s.Normal,
		"anomaly":    s.Anomaly,
		"top_source": s.TopSource,
	}).Info("Traffic summary")
}
