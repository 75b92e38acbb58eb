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

// Package session keeps the HTTP delivery sessions of the A2UI server.
//
// Every session owns a gap-free sequence of event ids starting at 1, a
// replay log, and a set of live subscribers. A client that reconnects with
// Last-Event-ID receives the events it missed followed by live ones, with
// nothing lost or duplicated in between.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	// ErrEventsTrimmed means events after the requested id were dropped from
	// the replay log; the client must resynchronize from scratch.
	ErrEventsTrimmed = errors.New("requested events were trimmed from the log")
)

// Event is one broadcast payload with its session-scoped id.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type session struct {
	mu        sync.Mutex
	id        string
	lastID    int64
	log       []Event
	subs      map[uint64]chan Event
	nextSub   uint64
	closed    bool
	done      chan struct{}
	createdAt time.Time
}

// Registry tracks live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session

	store     EventStore
	subBuffer int
	maxEvents int
	onSize    func(int)
	onDropped func(sessionID string)
	now       func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore mirrors every event into store.
func WithStore(store EventStore) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithSubscriberBuffer sets how many live events a subscriber may lag
// behind before it is dropped.
func WithSubscriberBuffer(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.subBuffer = n
		}
	}
}

// WithMaxEvents bounds the in-memory replay log per session. Zero keeps
// every event.
func WithMaxEvents(n int) Option {
	return func(r *Registry) {
		r.maxEvents = n
	}
}

// WithSizeObserver is called with the session count after it changes.
func WithSizeObserver(fn func(int)) Option {
	return func(r *Registry) {
		r.onSize = fn
	}
}

// WithDropObserver is called when a slow subscriber is dropped.
func WithDropObserver(fn func(sessionID string)) Option {
	return func(r *Registry) {
		r.onDropped = fn
	}
}

// NewRegistry creates an empty registry. Events are not mirrored anywhere
// unless WithStore is given.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions:  make(map[string]*session),
		subBuffer: 64,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = Discard
	}
	return r
}

// Create registers a session. An empty id gets a generated one. Events the
// store still holds for id are restored, so ids continue where they left
// off.
func (r *Registry) Create(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if r.Exists(id) {
		return "", fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	restored, err := r.store.Load(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to restore session %s: %w", id, err)
	}

	s := &session{
		id:        id,
		subs:      make(map[uint64]chan Event),
		done:      make(chan struct{}),
		createdAt: r.now(),
	}
	if n := len(restored); n > 0 {
		s.lastID = restored[n-1].ID
		s.log = r.trim(restored)
	}

	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	r.sessions[id] = s
	size := len(r.sessions)
	r.mu.Unlock()

	if r.onSize != nil {
		r.onSize(size)
	}
	slog.Debug("Session created", "session", id, "restored_events", len(restored))
	return id, nil
}

func (r *Registry) get(id string) (*session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (r *Registry) trim(log []Event) []Event {
	if r.maxEvents > 0 && len(log) > r.maxEvents {
		return append([]Event(nil), log[len(log)-r.maxEvents:]...)
	}
	return log
}

// Broadcast assigns the next event id to payload, records it and fans it
// out to subscribers. Subscribers whose buffer is full are dropped.
func (r *Registry) Broadcast(ctx context.Context, id string, payload []byte) (int64, error) {
	return r.BroadcastWith(ctx, id, payload, nil)
}

// BroadcastWith is Broadcast with a hook that runs after the event is
// committed and before the session lock is released, so hooks of one
// session observe events in id order. The hook must not call back into the
// registry for the same session.
func (r *Registry) BroadcastWith(ctx context.Context, id string, payload []byte, then func(Event)) (int64, error) {
	s, err := r.get(id)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	ev := Event{
		ID:        s.lastID + 1,
		SessionID: id,
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: r.now(),
	}
	if err := r.store.Append(ctx, ev); err != nil {
		return 0, fmt.Errorf("failed to persist event: %w", err)
	}
	s.lastID = ev.ID
	s.log = r.trim(append(s.log, ev))

	for key, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			delete(s.subs, key)
			close(ch)
			slog.Warn("Dropping slow session subscriber", "session", id, "event_id", ev.ID)
			if r.onDropped != nil {
				r.onDropped(id)
			}
		}
	}
	if then != nil {
		then(ev)
	}
	return ev.ID, nil
}

// EventsSince returns the logged events with an id greater than after.
func (r *Registry) EventsSince(id string, after int64) ([]Event, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkResume(s.log, after); err != nil {
		return nil, fmt.Errorf("%w: %s after %d", err, id, after)
	}
	return eventsAfter(s.log, after), nil
}

// checkResume rejects a resume point whose successor is no longer logged.
// A zero id is a fresh start and receives whatever the log still holds.
func checkResume(log []Event, after int64) error {
	if after <= 0 || len(log) == 0 {
		return nil
	}
	if after < log[0].ID-1 {
		return ErrEventsTrimmed
	}
	return nil
}

func eventsAfter(log []Event, after int64) []Event {
	i := sort.Search(len(log), func(i int) bool { return log[i].ID > after })
	return append([]Event(nil), log[i:]...)
}

// Subscribe returns a channel that first yields the logged events after
// the given id and then every new one. The channel is closed when ctx is
// done, the session is closed, or the subscriber falls too far behind.
func (r *Registry) Subscribe(ctx context.Context, id string, after int64) (<-chan Event, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := checkResume(s.log, after); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s after %d", err, id, after)
	}
	replay := eventsAfter(s.log, after)
	ch := make(chan Event, len(replay)+r.subBuffer)
	for _, ev := range replay {
		ch <- ev
	}
	key := s.nextSub
	s.nextSub++
	s.subs[key] = ch
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[key]; ok {
			delete(s.subs, key)
			close(c)
		}
	}()

	return ch, nil
}

// Subscribers returns the number of live subscribers of a session.
func (r *Registry) Subscribers(id string) int {
	s, err := r.get(id)
	if err != nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// LastEventID returns the id of the newest event of a session.
func (r *Registry) LastEventID(id string) (int64, error) {
	s, err := r.get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID, nil
}

// Close ends a session, closes its subscriber channels and deletes its
// stored events. Closing an unknown or already closed session is not an
// error.
func (r *Registry) Close(ctx context.Context, id string) error {
	return r.closeSession(ctx, id, true)
}

func (r *Registry) closeSession(ctx context.Context, id string, purge bool) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	size := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.closed = true
	for key, ch := range s.subs {
		delete(s.subs, key)
		close(ch)
	}
	close(s.done)
	s.mu.Unlock()

	if r.onSize != nil {
		r.onSize(size)
	}
	if !purge {
		return nil
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete stored events of %s: %w", id, err)
	}
	slog.Debug("Session closed", "session", id)
	return nil
}

// Exists reports whether a session is open.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the open session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// CloseAll detaches every open session for shutdown. Stored events are
// kept so a restarted registry can restore the sessions with Create.
func (r *Registry) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.IDs() {
		if err := r.closeSession(ctx, id, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
