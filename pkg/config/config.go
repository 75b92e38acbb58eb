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

// Package config loads the A2UI server configuration.
//
// Configuration is read from YAML, environment references of the form
// ${VAR} or ${VAR:-default} are expanded, and the result is decoded into
// Config, defaulted and validated. A file provider can watch the source and
// hand reloaded configurations to a callback.
//
// Example:
//
//	version: "1"
//	server:
//	  port: 8080
//	stream:
//	  retry: 2s
//	sessions:
//	  backend: sql
//	  database: default
//	databases:
//	  default:
//	    driver: sqlite
//	    database: ./.a2ui/a2ui.db
package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kadirpekel/a2ui/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	Version string `yaml:"version,omitempty" json:"version,omitempty" jsonschema:"title=Config Version,default=1"`

	Server        ServerConfig               `yaml:"server,omitempty" json:"server,omitempty"`
	Agent         AgentConfig                `yaml:"agent,omitempty" json:"agent,omitempty"`
	Logger        LoggerConfig               `yaml:"logger,omitempty" json:"logger,omitempty"`
	Stream        StreamConfig               `yaml:"stream,omitempty" json:"stream,omitempty"`
	Surfaces      SurfacesConfig             `yaml:"surfaces,omitempty" json:"surfaces,omitempty"`
	Sessions      SessionsConfig             `yaml:"sessions,omitempty" json:"sessions,omitempty"`
	Databases     map[string]*DatabaseConfig `yaml:"databases,omitempty" json:"databases,omitempty"`
	Observability observability.Config       `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// Default returns a defaulted configuration with no file behind it.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Databases == nil {
		c.Databases = make(map[string]*DatabaseConfig)
	}
	c.Server.SetDefaults()
	c.Agent.SetDefaults()
	c.Logger.SetDefaults()
	c.Stream.SetDefaults()
	c.Surfaces.SetDefaults()
	c.Sessions.SetDefaults()
	for _, db := range c.Databases {
		if db != nil {
			db.SetDefaults()
		}
	}
	c.Observability.SetDefaults()
}

// Validate checks every section and the references between them.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Agent.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("agent: %w", err))
	}
	if err := c.Logger.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logger: %w", err))
	}
	if err := c.Stream.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stream: %w", err))
	}
	if err := c.Surfaces.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("surfaces: %w", err))
	}
	if err := c.Sessions.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sessions: %w", err))
	}

	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		db := c.Databases[name]
		if db == nil {
			errs = append(errs, fmt.Errorf("databases.%s: empty definition", name))
			continue
		}
		if err := db.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("databases.%s: %w", name, err))
		}
	}

	if c.Sessions.IsSQL() {
		if _, ok := c.GetDatabase(c.Sessions.Database); !ok {
			errs = append(errs, fmt.Errorf("sessions: database %q not found", c.Sessions.Database))
		}
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	return errors.Join(errs...)
}

// GetDatabase returns a named database definition.
func (c *Config) GetDatabase(name string) (*DatabaseConfig, bool) {
	db, ok := c.Databases[name]
	if !ok || db == nil {
		return nil, false
	}
	return db, true
}
