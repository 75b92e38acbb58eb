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

package sse

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultRetry is the reconnection delay used until the server sends one.
	DefaultRetry = 2000 * time.Millisecond

	// DefaultMaxFrameSize bounds the bytes buffered for one incomplete frame.
	DefaultMaxFrameSize = 1 << 20

	// ContentType is the SSE media type.
	ContentType = "text/event-stream"
)

// ErrFrameTooLarge is returned when a partial frame outgrows MaxFrameSize.
// The buffered bytes are discarded.
var ErrFrameTooLarge = errors.New("SSE frame exceeds maximum size")

// StreamState tracks one logical stream across reconnects. It is not safe
// for concurrent use.
type StreamState struct {
	LastEventID      string
	RetryMS          int
	Buffer           string
	MessagesReceived int
	BytesReceived    int64
	ConnectedAt      time.Time
	LastMessageAt    time.Time
	Connected        bool

	// MaxFrameSize caps Buffer. Zero disables the cap.
	MaxFrameSize int
}

// NewStreamState returns a state with the default frame cap.
func NewStreamState() *StreamState {
	return &StreamState{MaxFrameSize: DefaultMaxFrameSize}
}

// Feed appends a network chunk and returns the events it completes.
func (s *StreamState) Feed(chunk string) ([]Event, error) {
	s.BytesReceived += int64(len(chunk))

	events, rest := ParseStream(s.Buffer + chunk)
	now := time.Now()
	for _, ev := range events {
		if ev.ID != "" {
			s.LastEventID = ev.ID
		}
		if ev.Retry > 0 {
			s.RetryMS = ev.Retry
		}
		s.MessagesReceived++
		s.LastMessageAt = now
	}

	if s.MaxFrameSize > 0 && len(rest) > s.MaxFrameSize {
		s.Buffer = ""
		return events, fmt.Errorf("%w: %d bytes buffered, limit %d", ErrFrameTooLarge, len(rest), s.MaxFrameSize)
	}
	s.Buffer = rest
	return events, nil
}

// MarkConnected records a successful (re)connection. A partial frame from
// the previous connection can never complete and is dropped.
func (s *StreamState) MarkConnected() {
	s.Connected = true
	s.ConnectedAt = time.Now()
	s.Buffer = ""
}

// MarkDisconnected records the loss of the connection.
func (s *StreamState) MarkDisconnected() {
	s.Connected = false
}

// ReconnectHeaders returns the request headers for (re)connecting.
// Last-Event-ID is present only once an event id has been seen.
func (s *StreamState) ReconnectHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", ContentType)
	if s.LastEventID != "" {
		h.Set("Last-Event-ID", s.LastEventID)
	}
	return h
}

// RetryDelay returns the server suggested delay or DefaultRetry.
func (s *StreamState) RetryDelay() time.Duration {
	if s.RetryMS > 0 {
		return time.Duration(s.RetryMS) * time.Millisecond
	}
	return DefaultRetry
}
