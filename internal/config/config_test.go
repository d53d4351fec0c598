package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PROMOTE_DB", "PROMOTE_POLICY", "PROMOTE_BATCH_SIZE", "PROMOTE_LOG_FORMAT", "PROMOTE_VERBOSE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "promote.db", cfg.Database)
	assert.Empty(t, cfg.PolicyDir)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, LogText, cfg.LogFormat)
	assert.False(t, cfg.Verbose)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PROMOTE_DB", "/tmp/site.db")
	t.Setenv("PROMOTE_POLICY", "./policy")
	t.Setenv("PROMOTE_BATCH_SIZE", "7")
	t.Setenv("PROMOTE_LOG_FORMAT", "json")
	t.Setenv("PROMOTE_VERBOSE", "true")

	cfg := Load()
	assert.Equal(t, Config{
		Database:  "/tmp/site.db",
		PolicyDir: "./policy",
		BatchSize: 7,
		LogFormat: LogJSON,
		Verbose:   true,
	}, cfg)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PROMOTE_BATCH_SIZE", "lots")
	t.Setenv("PROMOTE_VERBOSE", "maybe")

	cfg := Load()
	assert.Equal(t, 50, cfg.BatchSize)
	assert.False(t, cfg.Verbose)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty database", Config{BatchSize: 1, LogFormat: LogText}, "database"},
		{"zero batch", Config{Database: "x", LogFormat: LogText}, "batch size"},
		{"bad format", Config{Database: "x", BatchSize: 1, LogFormat: "xml"}, "log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	Config{LogFormat: LogJSON}.Logger(&buf).Info("hello", "delivery_id", "d1")
	assert.Contains(t, buf.String(), `"delivery_id":"d1"`)

	buf.Reset()
	Config{LogFormat: LogText}.Logger(&buf).Debug("hidden")
	assert.Empty(t, buf.String())

	Config{LogFormat: LogText, Verbose: true}.Logger(&buf).Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
