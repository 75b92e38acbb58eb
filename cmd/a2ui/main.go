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

// Command a2ui is the CLI for the A2UI protocol engine.
//
// Usage:
//
//	a2ui serve --config config.yaml
//	a2ui replay messages.jsonl
//	a2ui watch http://localhost:8080/stream/demo
//	a2ui validate messages.jsonl
//	a2ui validate --config config.yaml
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/a2ui"
	"github.com/kadirpekel/a2ui/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the A2UI session server."`
	Replay   ReplayCmd   `cmd:"" help:"Apply a recorded message stream and print the resulting surfaces."`
	Watch    WatchCmd    `cmd:"" help:"Follow an SSE stream and print surface changes."`
	Validate ValidateCmd `cmd:"" help:"Validate message files or a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the server configuration."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct {
	JSON bool `help:"Print as JSON."`
}

func (c *VersionCmd) Run() error {
	info := a2ui.GetVersion()
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Println(info.String())
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("a2ui"),
		kong.Description("A2UI protocol engine: surfaces, sessions and SSE delivery"),
		kong.UsageOnError(),
	)

	config.LoadDotEnv(cli.Config)

	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
