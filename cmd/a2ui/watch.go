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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/a2ui/pkg/protocol"
	"github.com/kadirpekel/a2ui/pkg/sse"
	"github.com/kadirpekel/a2ui/pkg/surface"
	"github.com/kadirpekel/a2ui/pkg/transport"
)

// WatchCmd follows an SSE stream and prints each surface as it changes.
type WatchCmd struct {
	URL         string   `arg:"" help:"SSE stream URL, e.g. http://localhost:8080/stream/demo."`
	LastEventID string   `name:"last-event-id" help:"Resume after this event id."`
	Header      []string `short:"H" help:"Extra request header as 'Key: Value'. Repeatable."`
	Data        bool     `help:"Include the data model in the output."`
	MaxAttempts int      `name:"max-attempts" help:"Give up after this many failed connection attempts (0 = never)."`
}

func (c *WatchCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []sse.ClientOption{sse.WithMaxAttempts(c.MaxAttempts)}
	if c.LastEventID != "" {
		opts = append(opts, sse.WithLastEventID(c.LastEventID))
	}
	for _, h := range c.Header {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, expected 'Key: Value'", h)
		}
		opts = append(opts, sse.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
	}

	err := watch(ctx, sse.NewClient(c.URL, opts...), os.Stdout, c.Data)
	return ignoreCanceled(err)
}

// watch pumps stream events through a dispatcher into a surface manager,
// printing every surface an envelope touched.
func watch(ctx context.Context, client *sse.Client, out io.Writer, withData bool) error {
	connID := uuid.NewString()
	frames := make(chan transport.Frame, 64)
	manager := surface.NewManager()
	d := transport.NewDispatcher(&printingApplier{Manager: manager, out: out, withData: withData})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		return client.Run(gctx, transport.SSEHandler(connID, frames))
	})
	g.Go(func() error {
		return d.Run(gctx, connID, frames)
	})
	return g.Wait()
}

// printingApplier prints a surface after each envelope applied to it.
type printingApplier struct {
	*surface.Manager
	out      io.Writer
	withData bool
}

func (p *printingApplier) ApplyFrom(ctx context.Context, connID string, env protocol.Envelope) error {
	if err := p.Manager.ApplyFrom(ctx, connID, env); err != nil {
		return err
	}
	id := env.SurfaceID()
	if snap, ok := p.Manager.Get(id); ok {
		printSurface(p.out, snap, p.withData)
		return nil
	}
	printSurface(p.out, surface.Snapshot{ID: id, Status: surface.StatusDeleted}, false)
	return nil
}
