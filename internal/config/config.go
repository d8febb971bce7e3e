package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override secrets.
const EnvPrefix = "NSIDS"

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LogConfig configures logrus and the rotated log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	JSON       bool   `yaml:"json"`
}

// CaptureConfig selects and tunes the packet source.
type CaptureConfig struct {
	// Source is one of live, nats or file.
	Source      string `yaml:"source"`
	Interface   string `yaml:"interface"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	Promiscuous bool   `yaml:"promiscuous"`
	BPFFilter   string `yaml:"bpf_filter"`
	File        string `yaml:"file"`
}

// ProbeConfig holds the NATS settings shared by ns-probe and the nats
// capture source.
type ProbeConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// DetectorConfig tunes the processing pipeline.
type DetectorConfig struct {
	QueueCapacity   int      `yaml:"queue_capacity"`
	BatchSize       int      `yaml:"batch_size"`
	PollInterval    Duration `yaml:"poll_interval"`
	SummaryInterval Duration `yaml:"summary_interval"`
	SkipInternal    bool     `yaml:"skip_internal"`
}

// TrackerConfig bounds connection state and the feature windows.
type TrackerConfig struct {
	Capacity    int      `yaml:"capacity"`
	IdleTimeout Duration `yaml:"idle_timeout"`
	TimeWindow  Duration `yaml:"time_window"`
	HostWindow  int      `yaml:"host_window"`
}

// ClassifierConfig selects the classifier implementation.
type ClassifierConfig struct {
	// Type is forest or remote.
	Type       string   `yaml:"type"`
	ModelPath  string   `yaml:"model_path"`
	RemoteAddr string   `yaml:"remote_addr"`
	Timeout    Duration `yaml:"timeout"`
	// ListenAddr is used by ns-classifier.
	ListenAddr string `yaml:"listen_addr"`
}

// ScalerConfig locates the persisted normaliser.
type ScalerConfig struct {
	Path       string `yaml:"path"`
	FitOnline  bool   `yaml:"fit_online"`
	MinSamples int    `yaml:"min_samples"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	BatchSize int    `yaml:"batch_size"`
}

// RecordsConfig configures the per-packet record sinks.
type RecordsConfig struct {
	CSVPath    string           `yaml:"csv_path"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// EvidenceConfig configures the pcap file of anomalous frames.
type EvidenceConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Path              string `yaml:"path"`
	ChannelBufferSize int    `yaml:"channel_buffer_size"`
	SnapshotLen       uint32 `yaml:"snapshot_len"`
}

// AIAnalysisConfig enables AI analysis of alert summaries.
type AIAnalysisConfig struct {
	Enabled bool     `yaml:"enabled"`
	Timeout Duration `yaml:"timeout"`
}

// AlerterConfig configures alert dispatch.
type AlerterConfig struct {
	Enabled       bool             `yaml:"enabled"`
	MinSeverity   string           `yaml:"min_severity"`
	RatePerMinute float64          `yaml:"rate_per_minute"`
	Burst         int              `yaml:"burst"`
	QueueSize     int              `yaml:"queue_size"`
	SendSummaries bool             `yaml:"send_summaries"`
	AIAnalysis    AIAnalysisConfig `yaml:"ai_analysis"`
}

// SMTPConfig holds the settings of the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// NATSAlertsConfig publishes alerts to NATS.
type NATSAlertsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// APIConfig configures the status API.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// AIConfig holds the OpenAI-compatible client settings.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Capture    CaptureConfig    `yaml:"capture"`
	Probe      ProbeConfig      `yaml:"probe"`
	Detector   DetectorConfig   `yaml:"detector"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Scaler     ScalerConfig     `yaml:"scaler"`
	Records    RecordsConfig    `yaml:"records"`
	Evidence   EvidenceConfig   `yaml:"evidence"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	NATSAlerts NATSAlertsConfig `yaml:"nats_alerts"`
	API        APIConfig        `yaml:"api"`
	AI         AIConfig         `yaml:"ai"`
}

// secrets are the values that may come from the environment instead of the
// config file, e.g. NSIDS_SMTP_PASSWORD.
type secrets struct {
	SMTPPassword       string `envconfig:"SMTP_PASSWORD"`
	ClickHousePassword string `envconfig:"CLICKHOUSE_PASSWORD"`
	AIAPIKey           string `envconfig:"AI_API_KEY"`
	NATSURL            string `envconfig:"NATS_URL"`
}

// LoadConfig reads the configuration from a YAML file, applies environment
// overrides and defaults, and validates the result.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	s := secrets{
		SMTPPassword:       c.SMTP.Password,
		ClickHousePassword: c.Records.ClickHouse.Password,
		AIAPIKey:           c.AI.APIKey,
		NATSURL:            c.Probe.NATSURL,
	}
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}
	c.SMTP.Password = s.SMTPPassword
	c.Records.ClickHouse.Password = s.ClickHousePassword
	c.AI.APIKey = s.AIAPIKey
	c.Probe.NATSURL = s.NATSURL
	return nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	setString(&c.Log.Level, "info")
	setInt(&c.Log.MaxSizeMB, 50)
	setInt(&c.Log.MaxBackups, 5)

	setString(&c.Capture.Source, "live")
	if c.Capture.SnapshotLen <= 0 {
		c.Capture.SnapshotLen = 65535
	}
	setString(&c.Probe.NATSURL, "nats://127.0.0.1:4222")
	setString(&c.Probe.Subject, "go2netids.packets")

	setInt(&c.Detector.QueueCapacity, 1000)
	setInt(&c.Detector.BatchSize, 100)
	setDuration(&c.Detector.PollInterval, 100*time.Millisecond)
	setDuration(&c.Detector.SummaryInterval, 180*time.Second)

	setInt(&c.Tracker.Capacity, 10000)
	setDuration(&c.Tracker.IdleTimeout, 2*time.Minute)
	setDuration(&c.Tracker.TimeWindow, 2*time.Second)
	setInt(&c.Tracker.HostWindow, 100)

	setString(&c.Classifier.Type, "forest")
	setDuration(&c.Classifier.Timeout, 2*time.Second)
	setString(&c.Classifier.ListenAddr, ":50061")
	setInt(&c.Scaler.MinSamples, 1000)

	setInt(&c.Records.ClickHouse.Port, 9000)
	setString(&c.Records.ClickHouse.Database, "default")
	setInt(&c.Records.ClickHouse.BatchSize, 500)

	setString(&c.Evidence.Path, "data/evidence.pcap")
	setInt(&c.Evidence.ChannelBufferSize, 1000)
	if c.Evidence.SnapshotLen == 0 {
		c.Evidence.SnapshotLen = 65535
	}

	setString(&c.Alerter.MinSeverity, "MEDIUM")
	if c.Alerter.RatePerMinute <= 0 {
		c.Alerter.RatePerMinute = 6
	}
	setInt(&c.Alerter.Burst, 3)
	setInt(&c.Alerter.QueueSize, 256)
	setDuration(&c.Alerter.AIAnalysis.Timeout, 60*time.Second)

	setInt(&c.SMTP.Port, 587)
	setString(&c.NATSAlerts.Subject, "go2netids.alerts")
	setString(&c.API.ListenAddr, ":8080")
	setString(&c.AI.Model, "gpt-4o-mini")
}

// Validate rejects values the binaries cannot run with.
func (c *Config) Validate() error {
	switch c.Capture.Source {
	case "live", "nats", "file":
	default:
		return fmt.Errorf("invalid capture.source %q: want live, nats or file", c.Capture.Source)
	}
	if c.Capture.Source == "file" && c.Capture.File == "" {
		return fmt.Errorf("capture.file is required when capture.source is file")
	}
	switch c.Classifier.Type {
	case "forest":
		if c.Classifier.ModelPath == "" {
			return fmt.Errorf("classifier.model_path is required for the forest classifier")
		}
	case "remote":
		if c.Classifier.RemoteAddr == "" {
			return fmt.Errorf("classifier.remote_addr is required for the remote classifier")
		}
	default:
		return fmt.Errorf("invalid classifier.type %q: want forest or remote", c.Classifier.Type)
	}
	switch strings.ToUpper(c.Alerter.MinSeverity) {
	case "LOW", "MEDIUM", "HIGH":
	default:
		return fmt.Errorf("invalid alerter.min_severity %q", c.Alerter.MinSeverity)
	}
	if c.Tracker.TimeWindow.Std() <= 0 || c.Tracker.HostWindow <= 0 {
		return fmt.Errorf("tracker windows must be positive")
	}
	return nil
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setDuration(v *Duration, def time.Duration) {
	if *v <= 0 {
		*v = Duration(def)
	}
}
