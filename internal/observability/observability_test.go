package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-123")
	l := WithRequest(ctx, Component(logger, "engine"))
	l.Info().Str("query", "stand mixer").Msg("lookup")
	l.Debug().Msg("suppressed")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "pricelens", entry["service"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "stand mixer", entry["query"])
	assert.Equal(t, "info", entry["level"])
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))

	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	l := WithRequest(context.Background(), logger)
	l.Info().Msg("x")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.IncRequest("found")
	m.IncRequest("found")
	m.IncProviderCall("brand_type", "ok")
	m.IncResolution("merchant_link")
	m.IncCache("memory", "hit")
	m.ObserveDuration(150 * time.Millisecond)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				values[mf.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, 2.0, values["pricelens_requests_total"])
	assert.Equal(t, 1.0, values["pricelens_provider_calls_total"])
	assert.Equal(t, 1.0, values["pricelens_resolution_total"])
	assert.Equal(t, 1.0, values["pricelens_cache_total"])
	assert.Equal(t, 1.0, values["pricelens_request_duration_seconds"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncRequest("found")
		m.IncProviderCall("s", "ok")
		m.IncResolution("step")
		m.IncCache("memory", "miss")
		m.ObserveDuration(time.Second)
	})
}
