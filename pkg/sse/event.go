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

// Package sse implements Server-Sent Events framing for A2UI streams:
// parsing and formatting events, tracking reconnection state, a
// reconnecting client and a flushing server writer.
package sse

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrEmptyEvent is returned by Parse for frames with no fields.
var ErrEmptyEvent = errors.New("empty SSE event")

// Event is one SSE frame. Empty ID and zero Retry mean the field was absent.
type Event struct {
	Data  string
	ID    string
	Retry int
	Type  string
}

var frameBoundary = regexp.MustCompile(`\r?\n\r?\n`)

// Parse decodes a single frame. Blank lines and comments are ignored,
// data lines are joined with "\n", and the last id, retry and event lines
// win. A retry value that is not a bare decimal integer is ignored.
func Parse(text string) (Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
		seen    bool
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			ev.ID = value
		case "retry":
			if n, ok := parseRetry(value); ok {
				ev.Retry = n
			}
		case "event":
			ev.Type = value
		default:
			continue
		}
		seen = true
	}

	if !seen {
		return Event{}, ErrEmptyEvent
	}
	if hasData {
		ev.Data = strings.Join(data, "\n")
	}
	return ev, nil
}

func parseRetry(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseStream extracts every complete frame from buffer. The text after
// the last frame boundary is returned unparsed so the caller can prepend
// it to the next read.
func ParseStream(buffer string) ([]Event, string) {
	bounds := frameBoundary.FindAllStringIndex(buffer, -1)
	if len(bounds) == 0 {
		return nil, buffer
	}

	events := make([]Event, 0, len(bounds))
	start := 0
	for _, b := range bounds {
		if ev, err := Parse(buffer[start:b[0]]); err == nil {
			events = append(events, ev)
		}
		start = b[1]
	}
	return events, buffer[start:]
}

// Format encodes ev as wire text: id, retry and event lines, one data line
// per line of Data, and a terminating blank line.
func Format(ev Event) string {
	var b strings.Builder
	if ev.ID != "" {
		b.WriteString("id: ")
		b.WriteString(ev.ID)
		b.WriteByte('\n')
	}
	if ev.Retry > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(ev.Retry))
		b.WriteByte('\n')
	}
	if ev.Type != "" {
		b.WriteString("event: ")
		b.WriteString(ev.Type)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// FormatOptions carries the optional fields of a formatted envelope.
type FormatOptions struct {
	ID    string
	Retry int
	Event string
}

// FormatEnvelope JSON-encodes v and formats it as one event.
func FormatEnvelope(v any, opts FormatOptions) (string, error) {
	var data []byte
	switch raw := v.(type) {
	case []byte:
		data = raw
	case json.RawMessage:
		data = raw
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return "", err
		}
	}
	return Format(Event{Data: string(data), ID: opts.ID, Retry: opts.Retry, Type: opts.Event}), nil
}
