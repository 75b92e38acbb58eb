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

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/a2ui/pkg/config"
	"github.com/kadirpekel/a2ui/pkg/protocol"
	"github.com/kadirpekel/a2ui/pkg/sse"
)

// ValidateCmd validates message files, or the configuration file when no
// message files are given.
type ValidateCmd struct {
	Files []string `arg:"" optional:"" help:"JSONL or JSON array files of envelopes." type:"path"`

	// Format specifies the output format
	Format string `short:"f" help:"Output format: compact, json." default:"compact" enum:"compact,json"`

	// PrintConfig prints the expanded configuration
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (with defaults applied and env vars resolved)."`
}

// Run executes the validate command.
func (c *ValidateCmd) Run(cli *CLI) error {
	if len(c.Files) == 0 {
		if cli.Config == "" {
			return errors.New("nothing to validate: pass message files or --config")
		}
		return c.validateConfig(cli.Config)
	}

	failed := 0
	for _, path := range c.Files {
		report, err := validateFile(path)
		if err != nil {
			return err
		}
		if !report.Valid {
			failed++
		}
		c.print(os.Stdout, report)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files invalid", failed, len(c.Files))
	}
	return nil
}

func (c *ValidateCmd) validateConfig(path string) error {
	cfg, loader, err := config.LoadConfigFile(context.Background(), path, config.WithStrict(true))
	if err != nil {
		c.print(os.Stdout, fileReport{File: path, Issues: []issue{{Type: "load", Message: err.Error()}}})
		return fmt.Errorf("config load failed")
	}
	defer loader.Close()

	if c.PrintConfig {
		return printExpandedConfig(os.Stdout, c.Format, cfg)
	}
	c.print(os.Stdout, fileReport{File: path, Valid: true})
	return nil
}

// issue is one problem found in a file. Warnings do not make a file
// invalid.
type issue struct {
	Line    int    `json:"line,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type fileReport struct {
	File      string  `json:"file"`
	Valid     bool    `json:"valid"`
	Envelopes int     `json:"envelopes,omitempty"`
	Issues    []issue `json:"issues,omitempty"`
}

func validateFile(path string) (fileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileReport{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	report := validateMessages(data)
	report.File = path
	return report, nil
}

// validateMessages parses every envelope in data, which is either a JSON
// array or one envelope per line.
func validateMessages(data []byte) fileReport {
	report := fileReport{Valid: true}

	check := func(line int, raw []byte) {
		report.Envelopes++
		env, err := protocol.Parse(raw)
		if err != nil {
			report.Valid = false
			report.Issues = append(report.Issues, issue{Line: line, Type: "error", Message: err.Error()})
			return
		}
		if env.SurfaceUpdate != nil {
			for _, w := range protocol.Lint(*env.SurfaceUpdate) {
				report.Issues = append(report.Issues, issue{Line: line, Type: "warning", Message: w})
			}
		}
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			report.Valid = false
			report.Issues = append(report.Issues, issue{Type: "error", Message: err.Error()})
			return report
		}
		for i, raw := range items {
			check(i+1, raw)
		}
		return report
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), sse.DefaultMaxFrameSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		check(line, raw)
	}
	if err := scanner.Err(); err != nil {
		report.Valid = false
		report.Issues = append(report.Issues, issue{Line: line + 1, Type: "error", Message: err.Error()})
	}
	return report
}

func (c *ValidateCmd) print(out io.Writer, report fileReport) {
	if c.Format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		}
		return
	}

	for _, is := range report.Issues {
		if is.Line > 0 {
			fmt.Fprintf(out, "%s:%d: %s: %s\n", report.File, is.Line, is.Type, is.Message)
		} else {
			fmt.Fprintf(out, "%s: %s: %s\n", report.File, is.Type, is.Message)
		}
	}
	if report.Valid {
		fmt.Fprintf(out, "%s: valid\n", report.File)
	}
}

// printExpandedConfig prints the configuration with defaults applied and
// env vars resolved.
func printExpandedConfig(out io.Writer, format string, cfg *config.Config) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as JSON: %w", err)
		}
		return nil
	}

	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	defer encoder.Close()
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config as YAML: %w", err)
	}
	return nil
}
