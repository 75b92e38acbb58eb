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

// Package transport turns raw frames from any delivery channel into
// surface updates.
//
// A connection (an SSE stream, an A2A task, an in-process pipe) yields
// Frames in arrival order. A Dispatcher owns one connection at a time and
// applies each frame to a surface manager from a single goroutine, so the
// order on the wire is the order of application. When the connection ends
// the surfaces it created are released.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/a2ui/pkg/a2aext"
	"github.com/kadirpekel/a2ui/pkg/observability"
	"github.com/kadirpekel/a2ui/pkg/protocol"
	"github.com/kadirpekel/a2ui/pkg/sse"
	"github.com/kadirpekel/a2ui/pkg/surface"
)

// ErrNoConsumer is returned when a frame is sent to a connection nobody
// reads anymore.
var ErrNoConsumer = surface.ErrNoConsumer

// Frame is one raw envelope received on a connection.
type Frame struct {
	ConnID string
	Data   []byte
}

// Applier is the subset of surface.Manager a Dispatcher drives.
type Applier interface {
	ApplyFrom(ctx context.Context, connID string, env protocol.Envelope) error
	Release(connID string) int
}

// ErrorHandler is told about frames that could not be parsed or applied.
// The dispatcher skips such frames and keeps going.
type ErrorHandler func(ctx context.Context, f Frame, err error)

// Dispatcher applies frames to surfaces.
type Dispatcher struct {
	applier Applier
	onError ErrorHandler
	tracer  *observability.Tracer
	metrics *observability.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithErrorHandler replaces the default handler, which logs.
func WithErrorHandler(fn ErrorHandler) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.onError = fn
		}
	}
}

// WithTracer records a span per frame.
func WithTracer(t *observability.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// WithMetrics counts envelopes and parse errors.
func WithMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher feeding applier.
func NewDispatcher(applier Applier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		applier: applier,
		onError: logError,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func logError(_ context.Context, f Frame, err error) {
	slog.Warn("Dropping frame", "conn_id", f.ConnID, "error", err)
}

// Run applies frames until the channel is closed or ctx is done, then
// releases the surfaces created by connID. It returns nil when the channel
// was closed and ctx.Err() on cancellation.
func (d *Dispatcher) Run(ctx context.Context, connID string, frames <-chan Frame) error {
	defer func() {
		if n := d.applier.Release(connID); n > 0 {
			slog.Debug("Connection closed", "conn_id", connID, "released_surfaces", n)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if f.ConnID == "" {
				f.ConnID = connID
			}
			if err := d.Dispatch(ctx, f); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.onError(ctx, f, err)
			}
		}
	}
}

// Dispatch parses one frame and applies it.
func (d *Dispatcher) Dispatch(ctx context.Context, f Frame) error {
	ctx, span := d.tracer.StartDispatch(ctx, f.ConnID)
	defer span.End()

	env, err := protocol.Parse(f.Data)
	if err != nil {
		d.metrics.RecordParseError(ctx, ErrorKind(err))
		observability.RecordError(span, err)
		return err
	}

	span.SetAttributes(
		attribute.String(observability.AttrMessageKind, env.Kind.String()),
		attribute.String(observability.AttrVersion, string(env.Version)),
		attribute.String(observability.AttrSurfaceID, env.SurfaceID()),
	)
	d.metrics.RecordEnvelope(ctx, string(env.Version), env.Kind.String())

	if err := d.applier.ApplyFrom(ctx, f.ConnID, env); err != nil {
		observability.RecordError(span, err)
		return err
	}
	return nil
}

// ErrorKind labels a parse error for metrics.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrJSONDecode):
		return "json_decode"
	case errors.Is(err, protocol.ErrUnknownMessageType):
		return "unknown_message_type"
	case errors.Is(err, protocol.ErrMultipleEnvelopeKeys):
		return "multiple_envelope_keys"
	case errors.Is(err, protocol.ErrInvalidEnvelopeType):
		return "invalid_envelope_type"
	case errors.Is(err, protocol.ErrParse):
		return "parse"
	default:
		return "other"
	}
}

// SSEHandler forwards the data of every SSE event on connID to out. It
// blocks while out is full and gives up when ctx is done.
func SSEHandler(connID string, out chan<- Frame) sse.Handler {
	return func(ctx context.Context, ev sse.Event) error {
		select {
		case out <- Frame{ConnID: connID, Data: []byte(ev.Data)}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// FramesFromMessage extracts the A2UI envelopes carried by an A2A message.
func FramesFromMessage(connID string, msg *a2a.Message) ([]Frame, error) {
	envs := a2aext.ExtractEnvelopes(msg)
	frames := make([]Frame, 0, len(envs))
	for i, env := range envs {
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		frames = append(frames, Frame{ConnID: connID, Data: data})
	}
	return frames, nil
}
