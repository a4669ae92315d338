package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	// Explicit values survive
	cfg = Config{Level: "debug", Format: "json"}
	cfg.ApplyDefaults()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid console", Config{Level: "info", Format: "console"}, ""},
		{"valid json", Config{Level: "warn", Format: "json"}, ""},
		{"bad level", Config{Level: "verbose", Format: "json"}, "invalid log level"},
		{"bad format", Config{Level: "info", Format: "xml"}, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("builds with defaults", func(t *testing.T) {
		logger, err := New(Config{}, nil)
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("hello")
		assert.NoError(t, Sync(logger))
	})

	t.Run("json format", func(t *testing.T) {
		logger, err := New(Config{Level: "debug", Format: "json"}, nil)
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		_, err := New(Config{Level: "shout"}, nil)
		assert.Error(t, err)
	})
}
