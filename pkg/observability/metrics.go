// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records engine metrics through an OpenTelemetry meter exported
// to a Prometheus registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	envelopes          metric.Int64Counter
	parseErrors        metric.Int64Counter
	activeSurfaces     metric.Int64Gauge
	activeSessions     metric.Int64Gauge
	broadcasts         metric.Int64Counter
	droppedSubscribers metric.Int64Counter
	sseClients         metric.Int64UpDownCounter
	clientEvents       metric.Int64Counter
	httpRequests       metric.Int64Counter
	httpDuration       metric.Float64Histogram
}

// NewMetrics creates the instruments. It returns nil when metrics are
// disabled.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
		otelprom.WithoutScopeInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/kadirpekel/a2ui")

	m := &Metrics{registry: registry, provider: provider}

	if m.envelopes, err = meter.Int64Counter("envelopes",
		metric.WithDescription("Server envelopes applied, by version and kind")); err != nil {
		return nil, fmt.Errorf("failed to create envelopes counter: %w", err)
	}
	if m.parseErrors, err = meter.Int64Counter("parse_errors",
		metric.WithDescription("Inbound frames rejected, by error kind")); err != nil {
		return nil, fmt.Errorf("failed to create parse errors counter: %w", err)
	}
	if m.activeSurfaces, err = meter.Int64Gauge("active_surfaces",
		metric.WithDescription("Surfaces currently held by the surface manager")); err != nil {
		return nil, fmt.Errorf("failed to create active surfaces gauge: %w", err)
	}
	if m.activeSessions, err = meter.Int64Gauge("active_sessions",
		metric.WithDescription("Open delivery sessions")); err != nil {
		return nil, fmt.Errorf("failed to create active sessions gauge: %w", err)
	}
	if m.broadcasts, err = meter.Int64Counter("session_events",
		metric.WithDescription("Events broadcast to sessions")); err != nil {
		return nil, fmt.Errorf("failed to create session events counter: %w", err)
	}
	if m.droppedSubscribers, err = meter.Int64Counter("dropped_subscribers",
		metric.WithDescription("Session subscribers dropped for falling behind")); err != nil {
		return nil, fmt.Errorf("failed to create dropped subscribers counter: %w", err)
	}
	if m.sseClients, err = meter.Int64UpDownCounter("sse_clients",
		metric.WithDescription("Connected SSE stream clients")); err != nil {
		return nil, fmt.Errorf("failed to create sse clients counter: %w", err)
	}
	if m.clientEvents, err = meter.Int64Counter("client_events",
		metric.WithDescription("Client events received, by kind")); err != nil {
		return nil, fmt.Errorf("failed to create client events counter: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter("http_requests",
		metric.WithDescription("HTTP requests, by method, route and status")); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	return m, nil
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordEnvelope(ctx context.Context, version, kind string) {
	if m == nil {
		return
	}
	m.envelopes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("version", version),
		attribute.String("kind", kind),
	))
}

func (m *Metrics) RecordParseError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.parseErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) SetActiveSurfaces(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.activeSurfaces.Record(ctx, int64(n))
}

func (m *Metrics) SetActiveSessions(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.activeSessions.Record(ctx, int64(n))
}

func (m *Metrics) RecordBroadcast(ctx context.Context) {
	if m == nil {
		return
	}
	m.broadcasts.Add(ctx, 1)
}

func (m *Metrics) RecordDroppedSubscriber(ctx context.Context) {
	if m == nil {
		return
	}
	m.droppedSubscribers.Add(ctx, 1)
}

// SSEClientConnected tracks an open stream; call the returned func when it
// closes.
func (m *Metrics) SSEClientConnected(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.sseClients.Add(ctx, 1)
	return func() { m.sseClients.Add(context.WithoutCancel(ctx), -1) }
}

func (m *Metrics) RecordClientEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.clientEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}

// Shutdown stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
