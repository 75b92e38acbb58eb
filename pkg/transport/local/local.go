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

// Package local delivers envelopes inside one process, for agents and
// renderers that share an address space and for tests.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/a2ui/pkg/protocol"
	"github.com/kadirpekel/a2ui/pkg/transport"
)

// pipe is the state shared by both ends.
type pipe struct {
	connID string
	frames chan transport.Frame

	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

func (p *pipe) close() {
	p.doneOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.frames)
	}
}

// Sender is the producing end of a pipe.
type Sender struct {
	p *pipe
}

// Receiver is the consuming end of a pipe.
type Receiver struct {
	p *pipe
}

// Pipe creates a connected Sender and Receiver. buffer is the number of
// frames the sender may run ahead of the receiver.
func Pipe(buffer int) (*Sender, *Receiver) {
	if buffer < 0 {
		buffer = 0
	}
	p := &pipe{
		connID: uuid.NewString(),
		frames: make(chan transport.Frame, buffer),
		done:   make(chan struct{}),
	}
	return &Sender{p: p}, &Receiver{p: p}
}

// ConnID identifies the connection the pipe represents.
func (s *Sender) ConnID() string { return s.p.connID }

// Send delivers one raw envelope. It blocks while the buffer is full and
// returns transport.ErrNoConsumer once either end is closed.
func (s *Sender) Send(ctx context.Context, raw []byte) error {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()

	if s.p.closed {
		return fmt.Errorf("%w: pipe %s closed", transport.ErrNoConsumer, s.p.connID)
	}

	frame := transport.Frame{ConnID: s.p.connID, Data: append([]byte(nil), raw...)}
	select {
	case s.p.frames <- frame:
		return nil
	case <-s.p.done:
		return fmt.Errorf("%w: pipe %s closed", transport.ErrNoConsumer, s.p.connID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendEnvelope encodes env in the given wire version and sends it.
func (s *Sender) SendEnvelope(ctx context.Context, env protocol.Envelope, version protocol.Version) error {
	raw, err := protocol.Encode(env, version)
	if err != nil {
		return err
	}
	return s.Send(ctx, raw)
}

// Close ends the connection. Frames already buffered are still delivered.
func (s *Sender) Close() error {
	s.p.close()
	return nil
}

// ConnID identifies the connection the pipe represents.
func (r *Receiver) ConnID() string { return r.p.connID }

// Frames returns the channel of received frames. It is closed when either
// end closes the pipe.
func (r *Receiver) Frames() <-chan transport.Frame {
	return r.p.frames
}

// Run feeds every frame to d until the pipe closes or ctx is done.
func (r *Receiver) Run(ctx context.Context, d *transport.Dispatcher) error {
	return d.Run(ctx, r.p.connID, r.p.frames)
}

// Close detaches the consumer. Later sends fail with ErrNoConsumer.
func (r *Receiver) Close() error {
	r.p.close()
	return nil
}
