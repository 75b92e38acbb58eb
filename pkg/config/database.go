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
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// DatabaseConfig is a named SQL database. Databases are declared in the
// databases section and referenced by name, for example from
// sessions.database.
type DatabaseConfig struct {
	// Driver is one of "postgres", "mysql", "sqlite" (alias "sqlite3").
	Driver string `yaml:"driver" json:"driver" jsonschema:"title=Database Type,description=Type of database,enum=postgres,enum=mysql,enum=sqlite,enum=sqlite3,default=postgres"`

	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,description=Database server hostname (not required for SQLite)"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,description=Database server port (not required for SQLite)"`

	// Database is the database name, or the file path for SQLite.
	Database string `yaml:"database" json:"database" jsonschema:"title=Database,description=Database name (or file path for SQLite)"`

	Username string `yaml:"username,omitempty" json:"username,omitempty" jsonschema:"title=Username,description=Database username (not required for SQLite)"`
	Password string `yaml:"password,omitempty" json:"password,omitempty" jsonschema:"title=Password,description=Database password (not required for SQLite)"`

	// SSLMode applies to PostgreSQL only.
	SSLMode string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty" jsonschema:"title=SSL Mode,description=SSL mode for PostgreSQL connections"`

	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty" jsonschema:"title=Max Open Connections,description=Maximum open connections,minimum=1,default=25"`
	MaxIdle  int `yaml:"max_idle,omitempty" json:"max_idle,omitempty" jsonschema:"title=Max Idle Connections,description=Maximum idle connections,minimum=1,default=5"`
}

// driverInfo describes what each supported driver needs.
type driverInfo struct {
	sqlName     string // name registered with database/sql
	dialect     string
	defaultPort int
	embedded    bool // no server; Database is a file path
}

var drivers = map[string]driverInfo{
	"postgres": {sqlName: "postgres", dialect: "postgres", defaultPort: 5432},
	"mysql":    {sqlName: "mysql", dialect: "mysql", defaultPort: 3306},
	"sqlite":   {sqlName: "sqlite3", dialect: "sqlite", embedded: true},
	"sqlite3":  {sqlName: "sqlite3", dialect: "sqlite", embedded: true},
}

// SetDefaults applies default values to the database config.
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	info, ok := drivers[c.Driver]
	if !ok {
		return
	}
	if c.Port == 0 {
		c.Port = info.defaultPort
	}
	if c.Driver == "postgres" && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("driver is required")
	}
	info, ok := drivers[c.Driver]
	if !ok {
		return fmt.Errorf("invalid driver %q (valid: postgres, mysql, sqlite)", c.Driver)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if !info.embedded && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}
	if c.MaxConns < 0 || c.MaxIdle < 0 {
		return fmt.Errorf("max_conns and max_idle must be non-negative")
	}
	return nil
}

// DSN returns the connection string for the driver.
func (c *DatabaseConfig) DSN() string {
	switch c.Dialect() {
	case "postgres":
		parts := []string{
			"host=" + c.Host,
			"port=" + strconv.Itoa(c.Port),
			"dbname=" + c.Database,
		}
		if c.Username != "" {
			parts = append(parts, "user="+c.Username)
		}
		if c.Password != "" {
			parts = append(parts, "password="+c.Password)
		}
		if c.SSLMode != "" {
			parts = append(parts, "sslmode="+c.SSLMode)
		}
		return strings.Join(parts, " ")
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Database
		// Event timestamps are scanned into time.Time.
		mc.ParseTime = true
		return mc.FormatDSN()
	case "sqlite":
		return c.Database
	default:
		return ""
	}
}

// DriverName returns the name to pass to sql.Open.
func (c *DatabaseConfig) DriverName() string {
	if info, ok := drivers[c.Driver]; ok {
		return info.sqlName
	}
	return c.Driver
}

// Dialect returns the SQL dialect used to build queries.
func (c *DatabaseConfig) Dialect() string {
	if info, ok := drivers[c.Driver]; ok {
		return info.dialect
	}
	return c.Driver
}

var dsnPassword = regexp.MustCompile(`(password=)\S+|(:)[^:@/]+(@)`)

// redactDSN hides passwords in a DSN for log and error output.
func redactDSN(dsn string) string {
	return dsnPassword.ReplaceAllString(dsn, "${1}${2}***${3}")
}
