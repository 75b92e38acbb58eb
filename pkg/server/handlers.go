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

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/a2ui/pkg/a2aext"
	"github.com/kadirpekel/a2ui/pkg/observability"
	"github.com/kadirpekel/a2ui/pkg/protocol"
	"github.com/kadirpekel/a2ui/pkg/session"
	"github.com/kadirpekel/a2ui/pkg/sse"
	"github.com/kadirpekel/a2ui/pkg/transport"
)

// LastEventIDQuery is the query parameter accepted in place of the
// Last-Event-ID header, for clients that cannot set headers.
const LastEventIDQuery = "last_event_id"

type createSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

type messageRequest struct {
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

type eventRequest struct {
	SessionID string          `json:"session_id"`
	Event     json.RawMessage `json:"event"`
}

type doneRequest struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeBody reads a JSON body into v. An empty body is allowed when
// allowEmpty is set.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	body := io.Reader(r.Body)
	if limit := s.cfg.Server.MaxBodyBytes; limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return true
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func sessionStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, session.ErrEventsTrimmed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func requireSessionID(w http.ResponseWriter, id string) bool {
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}

	id, err := s.sessions.Create(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	slog.Info("Session created", "session", id)
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decodeBody(w, r, &req, false) || !requireSessionID(w, req.SessionID) {
		return
	}

	ctx, span := s.tracer.StartBroadcast(r.Context(), req.SessionID)
	defer span.End()

	env, err := protocol.Parse(req.Message)
	if err != nil {
		s.metrics.RecordParseError(ctx, transport.ErrorKind(err))
		observability.RecordError(span, err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(
		attribute.String(observability.AttrMessageKind, env.Kind.String()),
		attribute.String(observability.AttrSurfaceID, env.SurfaceID()),
	)

	payload, err := compact(req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// The mirror is applied under the session lock so the preview sees
	// envelopes in event id order.
	eventID, err := s.sessions.BroadcastWith(ctx, req.SessionID, payload, func(session.Event) {
		s.mirror(r, req.SessionID, env)
	})
	if err != nil {
		observability.RecordError(span, err)
		writeError(w, sessionStatus(err), err)
		return
	}
	span.SetAttributes(attribute.Int64(observability.AttrEventID, eventID))
	s.metrics.RecordEnvelope(ctx, string(env.Version), env.Kind.String())
	s.metrics.RecordBroadcast(ctx)

	writeJSON(w, http.StatusOK, map[string]int64{"event_id": eventID})
}

// compact strips insignificant whitespace so each payload fits on one SSE
// data line.
func compact(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !s.decodeBody(w, r, &req, false) || !requireSessionID(w, req.SessionID) {
		return
	}

	env, err := protocol.ParseClientEvent(req.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.sessions.Exists(req.SessionID) {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", session.ErrSessionNotFound, req.SessionID))
		return
	}

	if err := s.dispatchEvent(r, req.SessionID, env); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) dispatchEvent(r *http.Request, sessionID string, env protocol.Envelope) error {
	ctx, span := s.tracer.Start(r.Context(), observability.SpanClientEvent)
	defer span.End()
	span.SetAttributes(
		attribute.String(observability.AttrSessionID, sessionID),
		attribute.String(observability.AttrMessageKind, env.Kind.String()),
	)

	s.metrics.RecordClientEvent(ctx, env.Kind.String())
	if err := s.handler.HandleEvent(ctx, sessionID, env); err != nil {
		observability.RecordError(span, err)
		return err
	}
	return nil
}

func (s *Server) handleDone(w http.ResponseWriter, r *http.Request) {
	var req doneRequest
	if !s.decodeBody(w, r, &req, false) || !requireSessionID(w, req.SessionID) {
		return
	}
	if err := s.sessions.Close(r.Context(), req.SessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.surfaces.Release(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// lastEventID reads the resume point from the Last-Event-ID header or the
// last_event_id query parameter. Absent means 0.
func lastEventID(r *http.Request) (int64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get(LastEventIDQuery)
	}
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid last event id %q", raw)
	}
	return id, nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	after, err := lastEventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	events, err := s.sessions.Subscribe(ctx, sessionID, after)
	if err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer s.metrics.SSEClientConnected(ctx)()

	cfg := s.streamConfig()
	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	slog.Debug("Stream opened", "session", sessionID, "after", after)
	retry := cfg.RetryMS()
	sentRetry := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat:
			if err := sw.Comment("ping"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				slog.Debug("Stream ended", "session", sessionID)
				return
			}
			frame := sse.Event{ID: strconv.FormatInt(ev.ID, 10), Data: string(ev.Payload)}
			if !sentRetry {
				frame.Retry = retry
			}
			if err := sw.WriteEvent(frame); err != nil {
				slog.Debug("Stream write failed", "session", sessionID, "error", err)
				return
			}
			sentRetry = true
		}
	}
}

// handleA2A accepts an A2A message whose DataParts carry client events.
// The message's context id names the session.
func (s *Server) handleA2A(w http.ResponseWriter, r *http.Request) {
	var msg a2a.Message
	if !s.decodeBody(w, r, &msg, false) {
		return
	}

	uris := append(a2aext.ParseExtensionsHeader(r.Header.Values(a2aext.ExtensionsHeader)), msg.Extensions...)
	version, err := a2aext.Negotiate(uris)
	switch {
	case errors.Is(err, a2aext.ErrNoExtension) && !s.cfg.Agent.RequireExtension:
		version = ""
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}

	caps, err := a2aext.ClientCapabilitiesOf(&msg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sessionID := msg.ContextID
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("contextId is required"))
		return
	}
	if !s.sessions.Exists(sessionID) {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID))
		return
	}

	var envs []protocol.Envelope
	for i, raw := range a2aext.ExtractEnvelopes(&msg) {
		env, err := protocol.ParseClientEventMap(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("part %d: %w", i, err))
			return
		}
		envs = append(envs, env)
	}

	for _, env := range envs {
		if err := s.dispatchEvent(r, sessionID, env); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	slog.Debug("A2A message accepted", "session", sessionID, "events", len(envs), "version", version, "catalogs", caps.SupportedCatalogIDs)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": len(envs),
		"version":  version,
	})
}
