package logging

import (
	"Go2NetIDS/internal/config"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ids.log")
	closer, err := Setup(config.LogConfig{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		closer.Close()
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	})

	assert.Equal(t, log.DebugLevel, log.GetLevel())
	log.WithField("component", "test").Info("hello file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
	assert.Contains(t, string(data), "component=test")
}

func TestSetup_RejectsUnknownLevel(t *testing.T) {
	_, err := Setup(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
