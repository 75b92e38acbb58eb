package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/a2ui/pkg/a2aext"
	"github.com/kadirpekel/a2ui/pkg/auth"
	"github.com/kadirpekel/a2ui/pkg/config"
	"github.com/kadirpekel/a2ui/pkg/observability"
	"github.com/kadirpekel/a2ui/pkg/protocol"
	"github.com/kadirpekel/a2ui/pkg/sse"
)

const (
	createSurface = `{"createSurface":{"surfaceId":"s","catalogId":"c"}}`
	deleteSurface = `{"deleteSurface":{"surfaceId":"s"}}`
	userAction    = `{"userAction":{"name":"submit","surfaceId":"s"}}`
)

type recordedEvent struct {
	sessionID string
	env       protocol.Envelope
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (r *recorder) HandleEvent(_ context.Context, sessionID string, env protocol.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{sessionID: sessionID, env: env})
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestServer(t *testing.T, mutate func(*config.Config), opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Stream.Heartbeat = time.Hour
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := New(cfg, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func post(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	resp, err := http.Post(url, "application/json", reader)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func createSession(t *testing.T, ts *httptest.Server, id string) string {
	t.Helper()
	status, body := post(t, ts.URL+"/sessions", map[string]string{"session_id": id})
	require.Equal(t, http.StatusCreated, status)
	return body["session_id"].(string)
}

func sendMessage(t *testing.T, ts *httptest.Server, id, message string) int64 {
	t.Helper()
	status, body := post(t, ts.URL+"/message", map[string]any{
		"session_id": id,
		"message":    json.RawMessage(message),
	})
	require.Equal(t, http.StatusOK, status, body)
	return int64(body["event_id"].(float64))
}

// ===== SESSIONS =====

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSession(t *testing.T) {
	_, ts := newTestServer(t, nil)

	status, body := post(t, ts.URL+"/sessions", nil)
	assert.Equal(t, http.StatusCreated, status)
	assert.Len(t, body["session_id"], 36)

	assert.Equal(t, "chat", createSession(t, ts, "chat"))

	status, _ = post(t, ts.URL+"/sessions", map[string]string{"session_id": "chat"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = post(t, ts.URL+"/sessions", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMessage(t *testing.T) {
	_, ts := newTestServer(t, nil)
	id := createSession(t, ts, "s1")

	assert.Equal(t, int64(1), sendMessage(t, ts, id, createSurface))
	assert.Equal(t, int64(2), sendMessage(t, ts, id, "{\n  \"deleteSurface\": {\"surfaceId\": \"s\"}\n}"))
	assert.Equal(t, int64(3), sendMessage(t, ts, id, createSurface))

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{name: "unknown type", body: map[string]any{"session_id": id, "message": json.RawMessage(`{"mystery":{}}`)}, status: http.StatusBadRequest},
		{name: "missing session id", body: map[string]any{"message": json.RawMessage(createSurface)}, status: http.StatusBadRequest},
		{name: "unknown session", body: map[string]any{"session_id": "nope", "message": json.RawMessage(createSurface)}, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, ts.URL+"/message", tt.body)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestMessage_BodyLimit(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) { c.Server.MaxBodyBytes = 32 })
	status, _ := post(t, ts.URL+"/message", map[string]any{
		"session_id": "s",
		"message":    json.RawMessage(createSurface),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestEvents(t *testing.T) {
	rec := &recorder{}
	_, ts := newTestServer(t, nil, WithEventHandler(rec))
	id := createSession(t, ts, "s1")

	status, _ := post(t, ts.URL+"/events", map[string]any{"session_id": id, "event": json.RawMessage(userAction)})
	assert.Equal(t, http.StatusAccepted, status)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "s1", rec.events[0].sessionID)
	assert.Equal(t, protocol.KindUserAction, rec.events[0].env.Kind)

	status, _ = post(t, ts.URL+"/events", map[string]any{"session_id": id, "event": json.RawMessage(createSurface)})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = post(t, ts.URL+"/events", map[string]any{"session_id": "nope", "event": json.RawMessage(userAction)})
	assert.Equal(t, http.StatusNotFound, status)

	rec.err = errors.New("agent offline")
	status, body := post(t, ts.URL+"/events", map[string]any{"session_id": id, "event": json.RawMessage(userAction)})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "agent offline", body["error"])
}

func TestDone(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	id := createSession(t, ts, "s1")

	for i := 0; i < 2; i++ {
		status, body := post(t, ts.URL+"/done", map[string]string{"session_id": id})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "closed", body["status"])
	}
	assert.False(t, srv.Registry().Exists(id))

	status, _ := post(t, ts.URL+"/done", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

// ===== STREAM =====

func TestStream_ReplayThenLive(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) { c.Stream.Retry = 1500 * time.Millisecond })
	id := createSession(t, ts, "s1")
	sendMessage(t, ts, id, createSurface)
	sendMessage(t, ts, id, deleteSurface)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := sse.NewClient(ts.URL+"/stream/"+id, sse.WithLastEventID("1"))
	var got []sse.Event
	errDone := errors.New("done")
	err := client.Run(ctx, func(ctx context.Context, ev sse.Event) error {
		got = append(got, ev)
		if ev.ID == "2" {
			sendMessage(t, ts, id, createSurface)
		}
		if ev.ID == "3" {
			return errDone
		}
		return nil
	})
	require.ErrorIs(t, err, errDone)

	require.Len(t, got, 2)
	assert.Equal(t, 1500, got[0].Retry, "first frame carries the retry hint")
	assert.JSONEq(t, deleteSurface, got[0].Data)
	assert.Zero(t, got[1].Retry)
	assert.JSONEq(t, createSurface, got[1].Data)
	assert.Equal(t, "3", client.State().LastEventID)
}

func TestStream_QueryResume(t *testing.T) {
	_, ts := newTestServer(t, nil)
	id := createSession(t, ts, "s1")
	for i := 0; i < 3; i++ {
		sendMessage(t, ts, id, createSurface)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ids []string
	errDone := errors.New("done")
	err := sse.NewClient(ts.URL+"/stream/"+id+"?last_event_id=2").Run(ctx, func(ctx context.Context, ev sse.Event) error {
		ids = append(ids, ev.ID)
		return errDone
	})
	require.ErrorIs(t, err, errDone)
	assert.Equal(t, []string{"3"}, ids)
}

func TestStream_Errors(t *testing.T) {
	_, ts := newTestServer(t, nil)
	id := createSession(t, ts, "s1")

	resp, err := http.Get(ts.URL + "/stream/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/stream/"+id, nil)
	req.Header.Set("Last-Event-ID", "abc")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStream_ResumeFromTrimmedEvents(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) {
		c.Sessions.MaxEvents = 2
	})
	id := createSession(t, ts, "s1")
	for i := 0; i < 4; i++ {
		sendMessage(t, ts, id, createSurface)
	}

	resp, err := http.Get(ts.URL + "/stream/" + id + "?last_event_id=1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []string
	errDone := errors.New("done")
	err = sse.NewClient(ts.URL+"/stream/"+id+"?last_event_id=2").Run(ctx, func(ctx context.Context, ev sse.Event) error {
		got = append(got, ev.ID)
		return errDone
	})
	require.ErrorIs(t, err, errDone)
	assert.Equal(t, []string{"3"}, got)
}

func TestStream_EndsOnDone(t *testing.T) {
	_, ts := newTestServer(t, nil)
	id := createSession(t, ts, "s1")
	sendMessage(t, ts, id, createSurface)

	resp, err := http.Get(ts.URL + "/stream/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, sse.ContentType, resp.Header.Get("Content-Type"))

	body := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(resp.Body)
		body <- string(data)
	}()

	time.Sleep(50 * time.Millisecond)
	status, _ := post(t, ts.URL+"/done", map[string]string{"session_id": id})
	require.Equal(t, http.StatusOK, status)

	select {
	case text := <-body:
		events, _ := sse.ParseStream(text)
		require.Len(t, events, 1)
		assert.Equal(t, "1", events[0].ID)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end after /done")
	}
}

func TestStream_Heartbeat(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) { c.Stream.Heartbeat = 20 * time.Millisecond })
	id := createSession(t, ts, "s1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 64)
	n, err := io.ReadAtLeast(resp.Body, buf, len(": ping\n\n"))
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), ": ping")
}

func TestStream_RetryHintAfterHeartbeat(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) {
		c.Stream.Heartbeat = 20 * time.Millisecond
		c.Stream.Retry = 1500 * time.Millisecond
	})
	id := createSession(t, ts, "s1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": ping") {
			break
		}
	}

	sendMessage(t, ts, id, previewCreate)

	var frame []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, ":") {
			continue
		}
		if line == "" && len(frame) > 0 {
			break
		}
		if line != "" {
			frame = append(frame, line)
		}
	}
	assert.Contains(t, frame, "id: 1")
	assert.Contains(t, frame, "retry: 1500", "the first event carries the retry hint even after pings")
}

// ===== A2A =====

func a2aBody(t *testing.T, contextID string, extensions []string, withCaps bool) []byte {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(userAction), &env))

	msg := a2aext.BuildClientMessage(env, protocol.ClientCapabilities{SupportedCatalogIDs: []string{protocol.StandardCatalogID}})
	if !withCaps {
		delete(msg.Metadata, a2aext.CapabilitiesKey)
	}
	msg.ContextID = contextID
	msg.Extensions = extensions

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestA2A(t *testing.T) {
	rec := &recorder{}
	_, ts := newTestServer(t, nil, WithEventHandler(rec))
	id := createSession(t, ts, "ctx-1")

	tests := []struct {
		name       string
		body       []byte
		header     string
		status     int
		wantEvents int
	}{
		{
			name:       "extension in message",
			body:       a2aBody(t, id, []string{a2aext.ExtensionURIV09}, true),
			status:     http.StatusAccepted,
			wantEvents: 1,
		},
		{
			name:       "extension in header",
			body:       a2aBody(t, id, nil, true),
			header:     a2aext.ExtensionURIV08,
			status:     http.StatusAccepted,
			wantEvents: 2,
		},
		{
			name:       "no extension is allowed when not required",
			body:       a2aBody(t, id, nil, true),
			status:     http.StatusAccepted,
			wantEvents: 3,
		},
		{
			name:       "ambiguous extension",
			body:       a2aBody(t, id, []string{a2aext.ExtensionURIV08, a2aext.ExtensionURIV09}, true),
			status:     http.StatusBadRequest,
			wantEvents: 3,
		},
		{
			name:       "missing capabilities",
			body:       a2aBody(t, id, []string{a2aext.ExtensionURIV09}, false),
			status:     http.StatusBadRequest,
			wantEvents: 3,
		},
		{
			name:       "unknown session",
			body:       a2aBody(t, "other", []string{a2aext.ExtensionURIV09}, true),
			status:     http.StatusNotFound,
			wantEvents: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, ts.URL+"/a2a", bytes.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			if tt.header != "" {
				req.Header.Set(a2aext.ExtensionsHeader, tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.wantEvents, rec.count())
		})
	}
}

func TestA2A_RequiredExtension(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) { c.Agent.RequireExtension = true })
	id := createSession(t, ts, "ctx-1")

	resp, err := http.Post(ts.URL+"/a2a", "application/json", bytes.NewReader(a2aBody(t, id, nil, true)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ===== CARD, METRICS, CORS =====

func TestAgentCard(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) {
		c.Agent.Name = "ui-agent"
		c.Agent.ProtocolVersions = []string{"v0.9"}
	})

	resp, err := http.Get(ts.URL + a2asrv.WellKnownAgentCardPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var card struct {
		Name         string `json:"name"`
		URL          string `json:"url"`
		Capabilities struct {
			Extensions []struct {
				URI string `json:"uri"`
			} `json:"extensions"`
		} `json:"capabilities"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.Equal(t, "ui-agent", card.Name)
	assert.Equal(t, "http://localhost:8080/a2a", card.URL)
	require.Len(t, card.Capabilities.Extensions, 1)
	assert.Equal(t, a2aext.ExtensionURIV09, card.Capabilities.Extensions[0].URI)
}

func TestLastEventID(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		query   string
		want    int64
		wantErr bool
	}{
		{name: "absent", want: 0},
		{name: "header", header: "7", want: 7},
		{name: "query", query: "5", want: 5},
		{name: "header wins", header: "7", query: "5", want: 7},
		{name: "negative", header: "-1", wantErr: true},
		{name: "garbage", query: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/stream/s"
			if tt.query != "" {
				target += "?last_event_id=" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				r.Header.Set("Last-Event-ID", tt.header)
			}
			got, err := lastEventID(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildAgentCard_InvalidVersion(t *testing.T) {
	cfg := config.Default()
	cfg.Agent.ProtocolVersions = []string{"v2"}
	_, err := BuildAgentCard(cfg)
	assert.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics, err := observability.NewMetrics(&observability.MetricsConfig{Enabled: true, Endpoint: "/metrics", Namespace: "a2ui"})
	require.NoError(t, err)

	_, ts := newTestServer(t, func(c *config.Config) {
		c.Observability.Metrics.Enabled = true
		c.Observability.Metrics.Endpoint = "/metrics"
	}, WithMetrics(metrics))
	id := createSession(t, ts, "s1")
	sendMessage(t, ts, id, createSurface)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "a2ui_http_requests_total")
	assert.Contains(t, text, `route="/message"`)
	assert.Contains(t, text, "a2ui_session_events_total")
	assert.Contains(t, text, "a2ui_active_sessions")
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/message", nil)
	req.Header.Set("Origin", "http://app.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://app.local", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Last-Event-ID")
}

func TestUpdateConfig(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	cfg := config.Default()
	cfg.Stream.Retry = 9 * time.Second
	srv.UpdateConfig(cfg)
	stream := srv.streamConfig()
	assert.Equal(t, 9000, stream.RetryMS())
}

func TestServe_Shutdown(t *testing.T) {
	srv, err := New(config.Default())
	require.NoError(t, err)

	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// ===== PREVIEW =====

const (
	previewCreate = `{"createSurface":{"surfaceId":"p","catalogId":"c"}}`
	previewUpdate = `{"updateComponents":{"surfaceId":"p","components":[{"id":"root","component":"Text","text":{"path":"/greeting"}}]}}`
	previewData   = `{"updateDataModel":{"surfaceId":"p","path":"/greeting","value":"hello"}}`
)

func TestSurfacePreview(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	id := createSession(t, ts, "s1")

	resp, err := http.Get(ts.URL + "/surfaces/p")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	sendMessage(t, ts, id, previewCreate)
	sendMessage(t, ts, id, previewUpdate)
	sendMessage(t, ts, id, previewData)

	resp, err = http.Get(ts.URL + "/surfaces/p")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		SurfaceID string `json:"surface_id"`
		Tree      struct {
			Type  string         `json:"type"`
			Props map[string]any `json:"props"`
		} `json:"tree"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "p", view.SurfaceID)
	assert.Equal(t, "Text", view.Tree.Type)
	assert.Equal(t, "hello", view.Tree.Props["text"])

	status, _ := post(t, ts.URL+"/done", map[string]string{"session_id": id})
	require.Equal(t, http.StatusOK, status)
	_, ok := srv.Surfaces().Get("p")
	assert.False(t, ok, "closing the session releases its surfaces")
}

func TestSurfacePreview_ConcurrentMessagesFollowEventOrder(t *testing.T) {
	_, ts := newTestServer(t, nil)
	id := createSession(t, ts, "s1")
	sendMessage(t, ts, id, previewCreate)

	const n = 40
	values := make(map[int64]int, n)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{
				"session_id": id,
				"message":    json.RawMessage(fmt.Sprintf(`{"updateDataModel":{"surfaceId":"p","path":"/n","value":%d}}`, i)),
			})
			resp, err := http.Post(ts.URL+"/message", "application/json", bytes.NewReader(body))
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			var out struct {
				EventID int64 `json:"event_id"`
			}
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			mu.Lock()
			values[out.EventID] = i
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	require.Len(t, values, n)

	resp, err := http.Get(ts.URL + "/surfaces/p")
	require.NoError(t, err)
	defer resp.Body.Close()
	var view struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, float64(values[n+1]), view.Data["n"], "the preview holds the value of the last event id")
}

func TestSurfacePreviewStream(t *testing.T) {
	_, ts := newTestServer(t, nil)
	id := createSession(t, ts, "s1")
	sendMessage(t, ts, id, previewCreate)
	sendMessage(t, ts, id, previewUpdate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var views []map[string]any
	errDone := errors.New("done")
	err := sse.NewClient(ts.URL+"/surfaces/p/stream").Run(ctx, func(ctx context.Context, ev sse.Event) error {
		var view map[string]any
		if err := json.Unmarshal([]byte(ev.Data), &view); err != nil {
			return err
		}
		views = append(views, view)
		if len(views) == 1 {
			sendMessage(t, ts, id, previewData)
			return nil
		}
		return errDone
	})
	require.ErrorIs(t, err, errDone)
	require.Len(t, views, 2)
	assert.Equal(t, map[string]any{"greeting": "hello"}, views[1]["data"])
}

// ===== AUTH =====

type staticValidator string

func (v staticValidator) ValidateToken(_ context.Context, token string) (*auth.Claims, error) {
	if token != string(v) {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{Subject: "tester"}, nil
}

func TestAuth(t *testing.T) {
	_, ts := newTestServer(t, nil, WithAuth(staticValidator("secret")))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "health is public", path: "/health", want: http.StatusOK},
		{name: "agent card is public", path: a2asrv.WellKnownAgentCardPath, want: http.StatusOK},
		{name: "missing token", path: "/surfaces/x", want: http.StatusUnauthorized},
		{name: "bad token", path: "/surfaces/x", header: "Bearer wrong", want: http.StatusUnauthorized},
		{name: "valid token", path: "/surfaces/x", header: "Bearer secret", want: http.StatusNotFound},
		{name: "query token", path: "/surfaces/x?access_token=secret", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+tt.path, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAuth_ExcludedPathsFromConfig(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Auth = &config.AuthConfig{ExcludedPaths: []string{"/surfaces/x"}}
	}, WithAuth(staticValidator("secret")))

	resp, err := http.Get(ts.URL + "/surfaces/x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
