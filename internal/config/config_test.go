package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_RepositoryDefault(t *testing.T) {
	cfg, err := LoadConfig("../../configs/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "live", cfg.Capture.Source)
	assert.Equal(t, 1000, cfg.Detector.QueueCapacity)
	assert.Equal(t, 180*time.Second, cfg.Detector.SummaryInterval.Std())
	assert.Equal(t, 2*time.Second, cfg.Tracker.TimeWindow.Std())
	assert.Equal(t, 100, cfg.Tracker.HostWindow)
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("NSIDS_SMTP_PASSWORD", "from-env")
	path := writeConfig(t, `
classifier:
  model_path: model.json
smtp:
  host: smtp.example.com
  password: from-file
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.SMTP.Password)
	assert.Equal(t, "forest", cfg.Classifier.Type)
	assert.Equal(t, 100, cfg.Detector.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Detector.PollInterval.Std())
	assert.Equal(t, 2*time.Minute, cfg.Tracker.IdleTimeout.Std())
	assert.Equal(t, "MEDIUM", cfg.Alerter.MinSeverity)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Probe.NATSURL)
}

func TestLoadConfig_KeepsFileValueWithoutEnv(t *testing.T) {
	path := writeConfig(t, `
classifier: {model_path: model.json}
ai: {api_key: file-key}
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.AI.APIKey)
}

func TestLoadConfig_Errors(t *testing.T) {
	cases := map[string]string{
		"bad duration":   "classifier: {model_path: m}\ndetector: {poll_interval: soon}\n",
		"bad source":     "classifier: {model_path: m}\ncapture: {source: carrier-pigeon}\n",
		"file no path":   "classifier: {model_path: m}\ncapture: {source: file}\n",
		"no model":       "classifier: {type: forest}\n",
		"remote no addr": "classifier: {type: remote}\n",
		"bad severity":   "classifier: {model_path: m}\nalerter: {min_severity: URGENT}\n",
		"bad yaml":       "classifier: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
