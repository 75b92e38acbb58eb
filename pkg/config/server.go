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

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	// Host to bind to.
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"default=0.0.0.0"`

	// Port to listen on.
	Port int `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"minimum=0,maximum=65535,default=8080"`

	// BaseURL is the public URL advertised in the agent card.
	// Default: http://<host>:<port>
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// TLS configuration.
	TLS *TLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`

	// CORS configuration.
	CORS *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty"`

	// Auth configures JWT bearer authentication. Disabled when nil.
	Auth *AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout,omitempty" json:"read_header_timeout,omitempty"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`

	// MaxBodyBytes bounds POST request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes,omitempty" json:"max_body_bytes,omitempty" jsonschema:"default=1048576"`
}

// TLSConfig configures HTTPS.
type TLSConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	CertFile string `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty" json:"key_file,omitempty"`
}

// CORSConfig configures CORS.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
	AllowedMethods []string `yaml:"allowed_methods,omitempty" json:"allowed_methods,omitempty"`
	AllowedHeaders []string `yaml:"allowed_headers,omitempty" json:"allowed_headers,omitempty"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.BaseURL == "" {
		host := c.Host
		if host == "0.0.0.0" {
			host = "localhost"
		}
		c.BaseURL = fmt.Sprintf("http://%s:%d", host, c.Port)
	}
	// Default CORS for development
	if c.CORS == nil {
		c.CORS = &CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Last-Event-ID", "Authorization"},
		}
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.Auth != nil {
		c.Auth.SetDefaults()
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TLS != nil && BoolValue(c.TLS.Enabled, false) {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls requires cert_file and key_file")
		}
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must be non-negative")
	}
	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Address returns the listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLSEnabled reports whether HTTPS is configured.
func (c *ServerConfig) TLSEnabled() bool {
	return c.TLS != nil && BoolValue(c.TLS.Enabled, false)
}

// AgentConfig describes the agent card served at the well-known path.
type AgentConfig struct {
	Name        string `yaml:"name,omitempty" json:"name,omitempty" jsonschema:"default=a2ui"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`

	// ProtocolVersions lists the A2UI versions the server speaks.
	ProtocolVersions []string `yaml:"protocol_versions,omitempty" json:"protocol_versions,omitempty" jsonschema:"enum=v0.8,enum=v0.9"`

	// RequireExtension marks the A2UI extension as required on the card.
	RequireExtension bool `yaml:"require_extension,omitempty" json:"require_extension,omitempty"`

	ProviderOrg string `yaml:"provider_org,omitempty" json:"provider_org,omitempty"`
	ProviderURL string `yaml:"provider_url,omitempty" json:"provider_url,omitempty"`
}

// SetDefaults applies default values.
func (c *AgentConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "a2ui"
	}
	if c.Description == "" {
		c.Description = "A2UI protocol engine"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if len(c.ProtocolVersions) == 0 {
		c.ProtocolVersions = []string{"v0.8", "v0.9"}
	}
}

// Validate checks the agent configuration.
func (c *AgentConfig) Validate() error {
	for _, v := range c.ProtocolVersions {
		if v != "v0.8" && v != "v0.9" {
			return fmt.Errorf("invalid protocol version %q (valid: v0.8, v0.9)", v)
		}
	}
	return nil
}

// BoolValue dereferences b, returning def when it is nil.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
