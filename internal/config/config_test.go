package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxcop/flow/internal/config"
)

// unset clears an environment variable for the test and restores it
// afterwards (t.Setenv registers the restore).
func unset(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadDefaults(t *testing.T) {
	unset(t, "LOG_LEVEL")
	unset(t, "LOG_FORMAT")
	unset(t, "FLOW_METRICS_ADDR")
	unset(t, "FLOW_METRICS_INTERVAL")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, 15*time.Second, cfg.MetricsInterval)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "pretty")
	t.Setenv("FLOW_METRICS_ADDR", "127.0.0.1:9200")
	t.Setenv("FLOW_METRICS_INTERVAL", "5s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, "127.0.0.1:9200", cfg.MetricsAddr)
	assert.Equal(t, 5*time.Second, cfg.MetricsInterval)
}

func TestValidateRejectsBadEnums(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	_, err := config.Load()
	assert.ErrorContains(t, err, "LOG_LEVEL")

	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FORMAT", "xml")
	_, err = config.Load()
	assert.ErrorContains(t, err, "LOG_FORMAT")
}
