package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siemguard/circuit-breaker/internal/config"
)

// chdir changes to dir for the duration of the test, like t.Chdir in Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restoring working directory: %v", err)
		}
	})
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "siemguard", cfg.Metrics.Namespace)
	assert.Empty(t, cfg.Services)
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
logging:
  level: debug
  format: text
metrics:
  namespace: secops
  address: ":9090"
services:
  - name: splunk
    breaker:
      failure_threshold: 3
      timeout: 30s
  - name: misp
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))
	chdir(t, dir)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "secops", cfg.Metrics.Namespace)
	require.Len(t, cfg.Services, 2)
	assert.Equal(t, "splunk", cfg.Services[0].Name)
	assert.Equal(t, 3, cfg.Services[0].Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Services[0].Breaker.Timeout)
}

func TestLoad_RejectsInvalidLevel(t *testing.T) {
	dir := t.TempDir()
	content := []byte("logging:\n  level: loud\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))
	chdir(t, dir)

	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidate_RejectsEmptyServiceName(t *testing.T) {
	cfg := &config.Config{
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
		Metrics: config.MetricsConfig{Namespace: "x", Address: ":1"},
		Services: []config.ServiceConfig{
			{Name: ""},
		},
	}
	assert.Error(t, cfg.Validate())
}

func TestConfigureLogging(t *testing.T) {
	cfg := &config.Config{
		Logging: config.LoggingConfig{Level: "warn", Format: "text"},
	}
	assert.NoError(t, cfg.ConfigureLogging())

	cfg.Logging.Level = "nope"
	assert.Error(t, cfg.ConfigureLogging())
}
