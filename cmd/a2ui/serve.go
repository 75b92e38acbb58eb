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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/a2ui/pkg/auth"
	"github.com/kadirpekel/a2ui/pkg/config"
	"github.com/kadirpekel/a2ui/pkg/observability"
	"github.com/kadirpekel/a2ui/pkg/server"
	"github.com/kadirpekel/a2ui/pkg/session"
	"github.com/kadirpekel/a2ui/pkg/surface"
)

// ServeCmd starts the session server.
type ServeCmd struct {
	Host  string `help:"Host to bind (overrides config)."`
	Port  int    `help:"Port to listen on (overrides config)."`
	Watch bool   `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *server.Server
	cfg, loader, err := loadConfig(ctx, cli.Config, config.WithOnChange(func(next *config.Config) {
		if srv != nil {
			srv.UpdateConfig(next)
		}
	}))
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	// Re-initialize with the config's logger section; flags and env still win.
	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, &cfg.Logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	tracer, err := observability.NewTracer(ctx, &cfg.Observability.Tracing)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	metrics, err := observability.NewMetrics(&cfg.Observability.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	dbPool := config.NewDBPool()
	defer dbPool.Close()

	store, err := session.NewStoreFromConfig(ctx, cfg, dbPool)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	registry := session.NewRegistry(append(server.RegistryOptions(cfg, metrics), session.WithStore(store))...)

	surfaces := surface.NewManager(
		surface.WithConsumerBuffer(cfg.Surfaces.ConsumerBuffer),
		surface.WithSizeObserver(func(n int) {
			metrics.SetActiveSurfaces(context.Background(), n)
		}),
	)

	serverOpts := []server.Option{
		server.WithRegistry(registry),
		server.WithSurfaces(surfaces),
		server.WithTracer(tracer),
		server.WithMetrics(metrics),
	}
	validator, err := auth.NewValidatorFromConfig(ctx, cfg.Server.Auth)
	if err != nil {
		return fmt.Errorf("failed to create auth validator: %w", err)
	}
	if validator != nil {
		serverOpts = append(serverOpts, server.WithAuth(validator))
		slog.Info("Authentication enabled", "issuer", cfg.Server.Auth.Issuer)
	}

	srv, err = server.New(cfg, serverOpts...)
	if err != nil {
		return err
	}

	printStartup(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Watch && loader != nil {
		g.Go(func() error {
			return ignoreCanceled(loader.Watch(gctx))
		})
	}
	g.Go(func() error {
		sweepSurfaces(gctx, surfaces, cfg.Surfaces.SweepInterval, cfg.Surfaces.IdleTTL)
		return nil
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if terr := tracer.Shutdown(shutdownCtx); terr != nil {
		slog.Warn("Tracer shutdown failed", "error", terr)
	}
	if merr := metrics.Shutdown(shutdownCtx); merr != nil {
		slog.Warn("Metrics shutdown failed", "error", merr)
	}
	return err
}

// sweepSurfaces removes idle mirrored surfaces until ctx is done.
func sweepSurfaces(ctx context.Context, m *surface.Manager, interval, idleTTL time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(idleTTL)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loadConfig loads the config file, or the defaults when no file is given.
func loadConfig(ctx context.Context, path string, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	if path == "" {
		slog.Info("No config file given, using defaults")
		return config.Default(), nil, nil
	}
	cfg, loader, err := config.LoadConfigFile(ctx, path, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("Loaded configuration", "path", path)
	return cfg, loader, nil
}

func printStartup(cfg *config.Config) {
	base := cfg.Server.BaseURL
	fmt.Printf("\nA2UI server ready\n")
	fmt.Printf("   Listening:   %s\n", cfg.Server.Address())
	fmt.Printf("   Agent Card:  %s/.well-known/agent-card.json\n", base)
	fmt.Printf("   Streams:     %s/stream/{session}\n", base)
	fmt.Printf("   Health:      %s/health\n", base)
	if cfg.Sessions.IsSQL() {
		fmt.Printf("   Sessions:    persistent (%s)\n", cfg.Sessions.Database)
	} else {
		fmt.Printf("   Sessions:    in-memory\n")
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:     %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
	}
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:     %s%s\n", base, cfg.Observability.Metrics.Endpoint)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
