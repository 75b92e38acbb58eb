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

package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kadirpekel/a2ui/pkg/protocol"
)

var (
	// ErrSurfaceNotFound is returned for ids the manager does not hold.
	ErrSurfaceNotFound = errors.New("surface not found")

	// ErrNoConsumer is returned when a change has nobody to deliver to.
	ErrNoConsumer = errors.New("no consumer registered")

	// ErrMissingSurfaceID is returned for envelopes without a surface id.
	ErrMissingSurfaceID = errors.New("envelope has no surface id")
)

// Change tells consumers that a surface was modified. Consumers read the
// new state with Manager.Get.
type Change struct {
	SurfaceID string
	Kind      protocol.Kind
	Status    Status
	Err       error
}

// entry is one surface plus its consumers. Its mutex makes it the single
// writer for that surface. Lock order is entry.mu before Manager.mu.
type entry struct {
	mu        sync.Mutex
	surface   *Surface
	owner     string
	consumers map[uint64]chan Change
	nextID    uint64
	idleSince time.Time
	eligible  bool
	removed   bool
	done      chan struct{}
}

// Manager holds every live surface.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	consumerBuffer int
	onSize         func(int)
	now            func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConsumerBuffer sets the channel buffer of each subscription.
func WithConsumerBuffer(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.consumerBuffer = n
		}
	}
}

// WithSizeObserver registers a callback invoked with the surface count
// after surfaces are created or removed.
func WithSizeObserver(fn func(int)) ManagerOption {
	return func(m *Manager) {
		m.onSize = fn
	}
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		entries:        make(map[string]*entry),
		consumerBuffer: 16,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply applies env to its surface, creating the surface if needed.
func (m *Manager) Apply(ctx context.Context, env protocol.Envelope) error {
	return m.ApplyFrom(ctx, "", env)
}

// ApplyFrom is Apply for envelopes that arrived on connection connID.
// Surfaces created this way are removed by Release(connID).
func (m *Manager) ApplyFrom(ctx context.Context, connID string, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if env.Kind == protocol.KindUserAction || env.Kind == protocol.KindError {
		return fmt.Errorf("%w: %s", ErrNotApplicable, env.Kind)
	}
	id := env.SurfaceID()
	if id == "" {
		return ErrMissingSurfaceID
	}

	for {
		e := m.getOrCreate(id, connID)
		e.mu.Lock()
		if e.removed {
			// Lost a race with removal; the next lookup creates a fresh entry.
			e.mu.Unlock()
			continue
		}

		err := e.surface.Apply(env)
		status := e.surface.Status
		if len(e.consumers) == 0 {
			e.idleSince = m.now()
		}
		e.broadcast(Change{SurfaceID: id, Kind: env.Kind, Status: status, Err: err})

		if status == StatusDeleted {
			m.removeLocked(id, e)
			slog.Debug("Surface deleted", "surface_id", id)
		}
		e.mu.Unlock()

		if err != nil {
			return fmt.Errorf("surface %q: %w", id, err)
		}
		return nil
	}
}

func (m *Manager) getOrCreate(id, owner string) *entry {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	if e, ok = m.entries[id]; ok {
		m.mu.Unlock()
		return e
	}
	e = &entry{
		surface:   New(id),
		owner:     owner,
		consumers: make(map[uint64]chan Change),
		done:      make(chan struct{}),
		eligible:  true,
		idleSince: m.now(),
	}
	m.entries[id] = e
	size := len(m.entries)
	m.mu.Unlock()

	slog.Debug("Surface created", "surface_id", id, "conn_id", owner)
	m.reportSize(size)
	return e
}

// removeLocked drops e from the registry. The caller holds e.mu.
func (m *Manager) removeLocked(id string, e *entry) {
	e.removed = true
	close(e.done)
	for cid, ch := range e.consumers {
		close(ch)
		delete(e.consumers, cid)
	}

	m.mu.Lock()
	if m.entries[id] == e {
		delete(m.entries, id)
	}
	size := len(m.entries)
	m.mu.Unlock()

	m.reportSize(size)
}

func (m *Manager) reportSize(n int) {
	if m.onSize != nil {
		m.onSize(n)
	}
}

// broadcast delivers c without blocking. A consumer with a full buffer
// misses the change but still sees the latest state on its next Get.
func (e *entry) broadcast(c Change) int {
	delivered := 0
	for _, ch := range e.consumers {
		select {
		case ch <- c:
			delivered++
		default:
		}
	}
	return delivered
}

// Get returns a copy of the surface state.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Snapshot{}, false
	}
	return e.surface.Snapshot(), true
}

// IDs returns the ids of all live surfaces, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of live surfaces.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Subscribe registers a consumer for surface id. The returned channel
// receives a Change after every applied envelope and is closed when ctx is
// done or the surface is removed. Cancelling never rolls back state.
func (m *Manager) Subscribe(ctx context.Context, id string) (<-chan Change, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	e.nextID++
	cid := e.nextID
	ch := make(chan Change, m.consumerBuffer)
	e.consumers[cid] = ch
	e.eligible = false
	e.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-e.done:
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.consumers[cid]; !ok {
			return
		}
		close(ch)
		delete(e.consumers, cid)
		if len(e.consumers) == 0 {
			e.eligible = true
			e.idleSince = m.now()
			slog.Debug("Last consumer left surface", "surface_id", id)
		}
	}()

	return ch, nil
}

// Consumers returns the number of registered consumers of id.
func (m *Manager) Consumers(id string) int {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.consumers)
}

// Notify delivers c to the consumers of id outside of Apply.
func (m *Manager) Notify(id string, c Change) error {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoConsumer, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || len(e.consumers) == 0 {
		return fmt.Errorf("%w: %s", ErrNoConsumer, id)
	}
	e.broadcast(c)
	return nil
}

// Sweep removes surfaces that have had no consumer and no applied
// envelope for at least maxIdle. It returns the number of surfaces removed.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	m.mu.RLock()
	candidates := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		candidates[id] = e
	}
	m.mu.RUnlock()

	now := m.now()
	removed := 0
	for id, e := range candidates {
		e.mu.Lock()
		if !e.removed && e.eligible && len(e.consumers) == 0 && now.Sub(e.idleSince) >= maxIdle {
			m.removeLocked(id, e)
			removed++
		}
		e.mu.Unlock()
	}
	if removed > 0 {
		slog.Debug("Swept idle surfaces", "count", removed)
	}
	return removed
}

// Release removes every surface created by connection connID.
func (m *Manager) Release(connID string) int {
	if connID == "" {
		return 0
	}

	m.mu.RLock()
	owned := make(map[string]*entry)
	for id, e := range m.entries {
		if e.owner == connID {
			owned[id] = e
		}
	}
	m.mu.RUnlock()

	removed := 0
	for id, e := range owned {
		e.mu.Lock()
		if !e.removed {
			m.removeLocked(id, e)
			removed++
		}
		e.mu.Unlock()
	}
	if removed > 0 {
		slog.Debug("Released connection surfaces", "conn_id", connID, "count", removed)
	}
	return removed
}
