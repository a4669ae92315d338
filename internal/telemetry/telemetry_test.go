package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "patternd", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled skips validation", Config{Enabled: false}, false},
		{
			"valid enabled",
			Config{Enabled: true, Endpoint: "localhost:4317", Protocol: "grpc", ServiceName: "patternd", SampleRate: 1.0},
			false,
		},
		{
			"missing endpoint",
			Config{Enabled: true, Protocol: "grpc", ServiceName: "patternd", SampleRate: 1.0},
			true,
		},
		{
			"bad protocol",
			Config{Enabled: true, Endpoint: "localhost:4317", Protocol: "udp", ServiceName: "patternd", SampleRate: 1.0},
			true,
		},
		{
			"missing service name",
			Config{Enabled: true, Endpoint: "localhost:4317", Protocol: "grpc", SampleRate: 1.0},
			true,
		},
		{
			"sample rate out of range",
			Config{Enabled: true, Endpoint: "localhost:4317", Protocol: "grpc", ServiceName: "patternd", SampleRate: 1.5},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false}, nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.False(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("patternd.test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, SampleRate: -1}, nil)
	assert.Error(t, err)
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.Degraded())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NotNil(t, tel.Tracer("patternd.test"))
}
