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

package config

import (
	"fmt"
	"time"
)

// StreamConfig configures SSE delivery.
type StreamConfig struct {
	// Retry is the reconnect delay suggested to clients.
	// Default: 2s
	Retry time.Duration `yaml:"retry,omitempty" json:"retry,omitempty"`

	// Heartbeat is the interval between comment frames on idle streams.
	// Zero disables heartbeats.
	// Default: 15s
	Heartbeat time.Duration `yaml:"heartbeat,omitempty" json:"heartbeat,omitempty"`

	// MaxFrameSize bounds a single inbound SSE frame in bytes.
	// Default: 1048576
	MaxFrameSize int `yaml:"max_frame_size,omitempty" json:"max_frame_size,omitempty"`
}

// SetDefaults applies default values.
func (c *StreamConfig) SetDefaults() {
	if c.Retry == 0 {
		c.Retry = 2 * time.Second
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 15 * time.Second
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = 1 << 20
	}
}

// Validate checks the stream configuration.
func (c *StreamConfig) Validate() error {
	if c.Retry < 0 {
		return fmt.Errorf("retry must be non-negative")
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must be non-negative")
	}
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("max_frame_size must be non-negative")
	}
	return nil
}

// RetryMS returns Retry in milliseconds.
func (c *StreamConfig) RetryMS() int {
	return int(c.Retry / time.Millisecond)
}

// SurfacesConfig configures the surface manager.
type SurfacesConfig struct {
	// ConsumerBuffer is the change buffer per surface consumer.
	// Default: 16
	ConsumerBuffer int `yaml:"consumer_buffer,omitempty" json:"consumer_buffer,omitempty"`

	// IdleTTL is how long a surface without consumers is kept.
	// Default: 10m
	IdleTTL time.Duration `yaml:"idle_ttl,omitempty" json:"idle_ttl,omitempty"`

	// SweepInterval is how often idle surfaces are collected.
	// Default: 1m
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty" json:"sweep_interval,omitempty"`
}

// SetDefaults applies default values.
func (c *SurfacesConfig) SetDefaults() {
	if c.ConsumerBuffer == 0 {
		c.ConsumerBuffer = 16
	}
	if c.IdleTTL == 0 {
		c.IdleTTL = 10 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
}

// Validate checks the surfaces configuration.
func (c *SurfacesConfig) Validate() error {
	if c.ConsumerBuffer < 0 {
		return fmt.Errorf("consumer_buffer must be non-negative")
	}
	if c.IdleTTL < 0 || c.SweepInterval < 0 {
		return fmt.Errorf("idle_ttl and sweep_interval must be non-negative")
	}
	return nil
}

// StorageBackend identifies a storage backend type.
type StorageBackend string

const (
	// StorageBackendInMemory uses in-memory storage (default).
	StorageBackendInMemory StorageBackend = "inmemory"

	// StorageBackendSQL uses SQL database for persistence.
	StorageBackendSQL StorageBackend = "sql"
)

// SessionsConfig configures the session registry.
type SessionsConfig struct {
	// Backend specifies the event store: "inmemory" (default) or "sql".
	Backend StorageBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"enum=inmemory,enum=sql,default=inmemory"`

	// Database is a reference to a database defined in the databases section.
	// Required when Backend is "sql".
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// SubscriberBuffer is how far a stream may lag before it is dropped.
	// Default: 64
	SubscriberBuffer int `yaml:"subscriber_buffer,omitempty" json:"subscriber_buffer,omitempty"`

	// MaxEvents bounds the in-memory replay log per session. Zero keeps all.
	MaxEvents int `yaml:"max_events,omitempty" json:"max_events,omitempty"`
}

// SetDefaults applies default values.
func (c *SessionsConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StorageBackendInMemory
	}
	if c.SubscriberBuffer == 0 {
		c.SubscriberBuffer = 64
	}
}

// Validate checks the sessions configuration.
func (c *SessionsConfig) Validate() error {
	switch c.Backend {
	case StorageBackendInMemory, "":
	case StorageBackendSQL:
		if c.Database == "" {
			return fmt.Errorf("database is required for the sql backend")
		}
	default:
		return fmt.Errorf("invalid backend %q (valid: inmemory, sql)", c.Backend)
	}
	if c.SubscriberBuffer < 0 || c.MaxEvents < 0 {
		return fmt.Errorf("subscriber_buffer and max_events must be non-negative")
	}
	return nil
}

// IsSQL reports whether sessions are mirrored to a database.
func (c *SessionsConfig) IsSQL() bool {
	return c.Backend == StorageBackendSQL
}

// IsInMemory reports whether sessions live only in memory.
func (c *SessionsConfig) IsInMemory() bool {
	return c.Backend == "" || c.Backend == StorageBackendInMemory
}
