package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ===== CONFIG =====

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, DefaultServiceName, cfg.Tracing.ServiceName)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.IsInsecure())
	assert.Equal(t, 10*time.Second, cfg.Tracing.Timeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)
	assert.Equal(t, "a2ui", cfg.Metrics.Namespace)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled ignores fields", cfg: Config{Tracing: TracingConfig{Exporter: "bogus", SamplingRate: 5}}},
		{name: "bad exporter", cfg: Config{Tracing: TracingConfig{Enabled: true, Exporter: "zipkin", SamplingRate: 1}}, wantErr: true},
		{name: "bad rate", cfg: Config{Tracing: TracingConfig{Enabled: true, Exporter: "stdout", SamplingRate: 2}}, wantErr: true},
		{name: "stdout", cfg: Config{Tracing: TracingConfig{Enabled: true, Exporter: "stdout", SamplingRate: 1}}},
		{name: "relative metrics path", cfg: Config{Metrics: MetricsConfig{Enabled: true, Endpoint: "metrics"}}, wantErr: true},
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

// ===== TRACER =====

func TestTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), &TracingConfig{})
	require.NoError(t, err)
	assert.Nil(t, tracer)

	_, span := tracer.StartDispatch(context.Background(), "conn-1")
	span.End()
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracer_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewTracer(context.Background(),
		&TracingConfig{Enabled: true, Exporter: "stdout"},
		WithSpanExporter(exporter),
		WithoutGlobal(),
	)
	require.NoError(t, err)

	_, span := tracer.StartBroadcast(context.Background(), "s1")
	RecordError(span, errors.New("boom"))
	span.End()
	require.NoError(t, tracer.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanBroadcast, spans[0].Name)
	assert.Len(t, spans[0].Events, 1)

	name, ok := spans[0].Resource.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, DefaultServiceName, name.AsString())
	_, ok = spans[0].Resource.Set().Value(semconv.TelemetrySDKNameKey)
	assert.True(t, ok, "default resource attributes are kept")
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracer_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := NewTracer(context.Background(),
		&TracingConfig{Enabled: true, Exporter: "stdout"},
		WithStdoutWriter(&buf),
		WithoutGlobal(),
	)
	require.NoError(t, err)

	_, span := tracer.StartDispatch(context.Background(), "c")
	span.End()
	require.NoError(t, tracer.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), SpanDispatch)
}

// ===== METRICS =====

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_NilSafe(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{})
	require.NoError(t, err)
	assert.Nil(t, m)

	ctx := context.Background()
	m.RecordEnvelope(ctx, "v0.9", "surface_update")
	m.RecordParseError(ctx, "parse error")
	m.SetActiveSurfaces(ctx, 3)
	m.SSEClientConnected(ctx)()
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.Shutdown(ctx))
}

func TestMetrics_Exposition(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: true})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	m.RecordEnvelope(ctx, "v0.8", "surface_update")
	m.RecordParseError(ctx, "unknown message type")
	m.SetActiveSurfaces(ctx, 2)
	m.SetActiveSessions(ctx, 1)
	m.RecordBroadcast(ctx)
	m.RecordDroppedSubscriber(ctx)
	m.RecordClientEvent(ctx, "user_action")
	done := m.SSEClientConnected(ctx)
	done()

	body := scrape(t, m)
	assert.Contains(t, body, "a2ui_envelopes_total")
	assert.Contains(t, body, `version="v0.8"`)
	assert.Contains(t, body, "a2ui_parse_errors_total")
	assert.Contains(t, body, "a2ui_active_surfaces")
	assert.Contains(t, body, "a2ui_session_events_total")
	assert.Contains(t, body, "go_goroutines")
}

// ===== MIDDLEWARE =====

func TestHTTPMiddleware_RouteLabelAndFlusher(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: true})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(nil, m))
	r.Get("/stream/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "wrapped writer keeps http.Flusher")
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	body := scrape(t, m)
	assert.Contains(t, body, `route="/stream/{id}"`)
	assert.Contains(t, body, `status="418"`)
	assert.NotContains(t, body, "/stream/abc")
}
