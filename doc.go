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

// Package a2ui is a protocol engine for A2UI, the declarative UI protocol
// agents use to describe interfaces that clients render natively.
//
// The engine parses v0.8 and v0.9 messages into one canonical model, keeps
// per-surface state (components, data model, lifecycle), expands templates
// against the data model, and delivers messages over Server-Sent Events
// with resumable sessions. A2A packaging and capability exchange let the
// same messages travel inside A2A messages.
//
// # Packages
//
//	pkg/datamodel       JSON Pointer data model and patch engine
//	pkg/protocol        parser, version adapters, client events
//	pkg/surface         surface state machine and template expansion
//	pkg/sse             SSE framing, stream state, reconnecting client
//	pkg/a2aext          A2A parts, extension and client capabilities
//	pkg/session         session registry with replay log
//	pkg/transport       ordered frame dispatch into surfaces
//	pkg/server          HTTP front end
//	pkg/auth            JWT bearer authentication
//
// # Quick Start
//
// Start the server:
//
//	a2ui serve --config config.yaml
//
// Push a message and follow the stream:
//
//	curl -X POST localhost:8080/sessions -d '{"session_id":"demo"}'
//	a2ui watch http://localhost:8080/stream/demo
//
// Apply a recorded stream locally:
//
//	a2ui replay messages.jsonl --data
//
// # Using as a Library
//
//	m := surface.NewManager()
//	env, err := protocol.Parse(raw)
//	if err != nil {
//		return err
//	}
//	if err := m.ApplyFrom(ctx, "conn-1", env); err != nil {
//		return err
//	}
//	snap, _ := m.Get(env.SurfaceID())
//	tree, err := surface.Resolve(snap)
package a2ui
