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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/a2ui/pkg/protocol"
	"github.com/kadirpekel/a2ui/pkg/sse"
	"github.com/kadirpekel/a2ui/pkg/surface"
	"github.com/kadirpekel/a2ui/pkg/transport"
	"github.com/kadirpekel/a2ui/pkg/transport/local"
)

// ReplayCmd applies a recorded message stream and prints the surfaces it
// produced.
type ReplayCmd struct {
	File   string `arg:"" help:"JSONL file with one envelope per line ('-' for stdin)." type:"path"`
	Buffer int    `help:"Pipe buffer size." default:"64"`
	Data   bool   `help:"Include the data model in the output."`
	Strict bool   `help:"Fail on the first rejected line instead of skipping it."`
}

func (c *ReplayCmd) Run(cli *CLI) error {
	in, err := openInput(c.File)
	if err != nil {
		return err
	}
	defer in.Close()

	return replay(context.Background(), in, os.Stdout, c.Buffer, c.Data, c.Strict)
}

// replay feeds each line of in through a local pipe into a surface manager
// and writes the resolved surfaces to out once the input is exhausted.
func replay(ctx context.Context, in io.Reader, out io.Writer, buffer int, withData, strict bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := surface.NewManager()
	applier := &releaseHook{
		Manager: manager,
		before: func() {
			printSurfaces(out, manager, withData)
		},
	}

	var rejected []error
	d := transport.NewDispatcher(applier, transport.WithErrorHandler(func(ctx context.Context, f transport.Frame, err error) {
		slog.Warn("Rejected line", "error", err)
		rejected = append(rejected, err)
		if strict {
			cancel()
		}
	}))

	sender, receiver := local.Pipe(buffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return receiver.Run(gctx, d)
	})
	g.Go(func() error {
		defer sender.Close()
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), sse.DefaultMaxFrameSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := sender.Send(gctx, []byte(line)); err != nil {
				return err
			}
		}
		return scanner.Err()
	})

	if err := g.Wait(); err != nil {
		if strict && len(rejected) > 0 {
			return fmt.Errorf("replay stopped: %w", rejected[0])
		}
		return err
	}
	if len(rejected) > 0 {
		slog.Info("Replay finished with rejected lines", "count", len(rejected))
	}
	return nil
}

// releaseHook calls before ahead of releasing a connection's surfaces.
type releaseHook struct {
	*surface.Manager
	before func()
}

func (h *releaseHook) Release(connID string) int {
	if h.before != nil {
		h.before()
	}
	return h.Manager.Release(connID)
}

// surfaceOutput is the printed form of a surface.
type surfaceOutput struct {
	SurfaceID string           `json:"surfaceId"`
	Status    surface.Status   `json:"status"`
	Version   protocol.Version `json:"version,omitempty"`
	CatalogID string           `json:"catalogId,omitempty"`
	Data      any              `json:"data,omitempty"`
	Tree      *surface.Node    `json:"tree,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func newSurfaceOutput(snap surface.Snapshot, withData bool) surfaceOutput {
	o := surfaceOutput{
		SurfaceID: snap.ID,
		Status:    snap.Status,
		Version:   snap.Version,
		CatalogID: snap.CatalogID,
	}
	if snap.Status == surface.StatusDeleted {
		return o
	}
	if withData {
		o.Data = snap.Data
	}
	if tree, err := surface.Resolve(snap); err != nil {
		o.Error = err.Error()
	} else {
		o.Tree = tree
	}
	return o
}

func printSurfaces(out io.Writer, m *surface.Manager, withData bool) {
	for _, id := range m.IDs() {
		if snap, ok := m.Get(id); ok {
			printSurface(out, snap, withData)
		}
	}
}

func printSurface(out io.Writer, snap surface.Snapshot, withData bool) {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(newSurfaceOutput(snap, withData)); err != nil {
		slog.Error("Failed to encode surface", "surface_id", snap.ID, "error", err)
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}
