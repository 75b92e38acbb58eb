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
	"fmt"
	"log/slog"

	"github.com/kadirpekel/a2ui/pkg/config"
)

// NewStoreFromConfig creates the event store selected by cfg.Sessions.
// The inmemory backend returns Discard since the registry log already holds
// the events. SQL stores take their connection from pool.
func NewStoreFromConfig(ctx context.Context, cfg *config.Config, pool *config.DBPool) (EventStore, error) {
	if cfg == nil || cfg.Sessions.IsInMemory() {
		return Discard, nil
	}

	dbCfg, ok := cfg.GetDatabase(cfg.Sessions.Database)
	if !ok {
		return nil, fmt.Errorf("database %q not found", cfg.Sessions.Database)
	}
	if pool == nil {
		return nil, fmt.Errorf("database pool is required for the sql backend")
	}

	db, err := pool.Get(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	store, err := NewSQLStore(db, dbCfg.Dialect())
	if err != nil {
		return nil, err
	}
	slog.Info("Session events persisted to database", "database", cfg.Sessions.Database, "dialect", dbCfg.Dialect())
	return store, nil
}

// OptionsFromConfig maps the sessions section onto registry options.
func OptionsFromConfig(cfg config.SessionsConfig) []Option {
	return []Option{
		WithSubscriberBuffer(cfg.SubscriberBuffer),
		WithMaxEvents(cfg.MaxEvents),
	}
}
