package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/chibi-storefront/internal/config"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, false)
	assert.ErrorContains(t, err, "invalid log level")
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(config.LogConfig{Level: "info", Format: "xml"}, false)
	assert.ErrorContains(t, err, "invalid log format")
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	log, err := New(config.LogConfig{Level: "warn"}, true)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1))
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chibi.log")

	log, err := New(config.LogConfig{Level: "info", Format: "json", File: path}, false)
	require.NoError(t, err)

	log.Info("cart fetched")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cart fetched")
}
