package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledUsesNoopBackends(t *testing.T) {
	var out bytes.Buffer
	tel, err := New(context.Background(), Options{ServiceName: "ecstore-test", Output: &out})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, tel.Shutdown(context.Background())) })

	assert.IsType(t, &statsd.NoOpClient{}, tel.Statsd)

	_, span := tel.Tracer.Start(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	span.End()

	logger := tel.GetLogger("store")
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "ecstore-test", line["service"])
	assert.Equal(t, "ecstore-test.store", line["component"])
}

func TestNew_ConfigFromEnv(t *testing.T) {
	t.Setenv("ECSTORE_TELEMETRY_LOG_LEVEL", "warn")
	t.Setenv("ECSTORE_TELEMETRY_STATSD_TAGS", "env:test,region:eu")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, []string{"env:test", "region:eu"}, cfg.StatsdTags)
	assert.False(t, cfg.Enabled)

	var out bytes.Buffer
	tel, err := New(context.Background(), Options{ServiceName: "ecstore-test", Output: &out})
	require.NoError(t, err)
	tel.Logger.Info().Msg("dropped")
	assert.Empty(t, out.String())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid disabled",
			cfg:  Config{LogLevel: "info", LogFormat: "json"},
		},
		{
			name:    "bad log level",
			cfg:     Config{LogLevel: "loud", LogFormat: "json"},
			wantErr: true,
		},
		{
			name:    "bad log format",
			cfg:     Config{LogLevel: "info", LogFormat: "xml"},
			wantErr: true,
		},
		{
			name:    "enabled without endpoint",
			cfg:     Config{Enabled: true, LogLevel: "info", LogFormat: "json", TraceSampleRate: 1},
			wantErr: true,
		},
		{
			name:    "sample rate out of range",
			cfg:     Config{Enabled: true, Endpoint: "x:4317", LogLevel: "info", LogFormat: "json", TraceSampleRate: 2},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptions_RequireServiceName(t *testing.T) {
	t.Parallel()

	opts := newDefaultOptions()
	opts.apply(Options{LogLevel: "info", LogFormat: LogFormatJSON, TraceSampleRate: 1})
	require.Error(t, opts.validate())

	opts.apply(Options{ServiceName: "svc"})
	require.NoError(t, opts.validate())
}

func TestParseLogFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LogFormatJSON, ParseLogFormat("JSON"))
	assert.Equal(t, LogFormatPretty, ParseLogFormat("pretty"))
	assert.Equal(t, LogFormatUndefined, ParseLogFormat("yaml"))
	assert.Equal(t, "pretty", LogFormatPretty.String())
}
