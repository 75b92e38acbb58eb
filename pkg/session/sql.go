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
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// createEventsTableSQL creates the a2ui_session_events table.
	createEventsTableSQL = `
CREATE TABLE IF NOT EXISTS a2ui_session_events (
    session_id VARCHAR(255) NOT NULL,
    event_id BIGINT NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, event_id)
)`

	insertEventSQL = `
INSERT INTO a2ui_session_events (session_id, event_id, payload, created_at)
VALUES (?, ?, ?, ?)`

	selectEventsSQL = `
SELECT event_id, payload, created_at
FROM a2ui_session_events
WHERE session_id = ?
ORDER BY event_id`

	deleteEventsSQL = `DELETE FROM a2ui_session_events WHERE session_id = ?`
)

// SQLStore persists session events in a SQL database. The db connection
// should come from config.DBPool so SQLite access stays on one connection.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates the events table if needed. dialect is one of
// postgres, mysql or sqlite.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	normalized := dialect
	if dialect == "sqlite3" {
		normalized = "sqlite"
	}
	switch normalized {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: normalized}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createEventsTableSQL); err != nil {
		return fmt.Errorf("failed to create a2ui_session_events table: %w", err)
	}
	return nil
}

// bind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) bind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Append(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx, s.bind(insertEventSQL),
		ev.SessionID, ev.ID, string(ev.Payload), ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(selectEventsSQL), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			payload string
		)
		if err := rows.Scan(&ev.ID, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.SessionID = sessionID
		ev.Payload = []byte(payload)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, s.bind(deleteEventsSQL), sessionID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

// Close is a no-op; the connection belongs to the pool that opened it.
func (s *SQLStore) Close() error {
	return nil
}

var _ EventStore = (*SQLStore)(nil)
