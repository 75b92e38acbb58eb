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

package session

import (
	"context"
	"sync"
)

// EventStore mirrors session events so a restarted server can resume the
// id sequence and replay log of a session.
type EventStore interface {
	// Append records one event. Events of a session arrive in id order.
	Append(ctx context.Context, ev Event) error

	// Load returns the stored events of a session in id order.
	Load(ctx context.Context, sessionID string) ([]Event, error)

	// Delete drops every stored event of a session.
	Delete(ctx context.Context, sessionID string) error

	// Close releases the store.
	Close() error
}

// Discard is an EventStore that keeps nothing. Sessions then live only in
// the registry's own replay log.
var Discard EventStore = discardStore{}

type discardStore struct{}

func (discardStore) Append(context.Context, Event) error { return nil }
func (discardStore) Load(context.Context, string) ([]Event, error) { return nil, nil }
func (discardStore) Delete(context.Context, string) error { return nil }
func (discardStore) Close() error { return nil }

// MemoryStore keeps events in process memory, surviving registry restarts
// within one process.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]Event)}
}

func (m *MemoryStore) Append(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.SessionID] = append(m.events[ev.SessionID], ev)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events[sessionID]...), nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, sessionID)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

var _ EventStore = (*MemoryStore)(nil)
