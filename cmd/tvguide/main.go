// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

// Package main is the entry point of the TVGuide server.
//
// The server keeps one EPG table per channel, fills the tables from the
// guide backend, persists them in the configured store and serves them over
// a JSON API.
//
// # Application Architecture
//
// Components are initialized in this order:
//
//  1. Configuration: defaults, config file and environment (koanf)
//  2. Store: badger, duckdb or sqlite, skipped with EPG_IGNORE_DATABASE
//  3. Backend client: rate limited, retried and behind a circuit breaker
//  4. Registry: tables loaded from the store, events loaded lazily
//  5. Supervisor tree: flusher, scanner, push subscriber and HTTP server
//
// # Build Tags
//
//	go build ./cmd/tvguide                # no push notifications
//	go build -tags nats ./cmd/tvguide     # NATS JetStream push subscriber
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor tree. Pending table changes are
// flushed before the store is closed.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/tvguide/internal/api"
	"github.com/tomtom215/tvguide/internal/backend"
	"github.com/tomtom215/tvguide/internal/config"
	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/push"
	"github.com/tomtom215/tvguide/internal/scanner"
	"github.com/tomtom215/tvguide/internal/supervisor"
	"github.com/tomtom215/tvguide/internal/supervisor/services"
	"github.com/tomtom215/tvguide/internal/xref"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const closeTimeout = 30 * time.Second

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LogConfig())

	logging.Info().
		Str("version", version).
		Str("store_driver", cfg.Store.Driver).
		Bool("ignore_database", cfg.EPG.IgnoreDatabase).
		Msg("Starting TVGuide")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st persistentStore
	if !cfg.EPG.IgnoreDatabase {
		st, err = openStore(ctx, cfg.Store)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open store")
		}
		logging.Info().Str("path", cfg.Store.Path).Msg("Store opened")
	}

	// The breaker is both the event source and the channel source.
	var (
		source   epg.BackendClient
		channels epg.ChannelSource
	)
	if cfg.Backend.URL != "" {
		client, err := backend.NewClient(cfg.BackendClientConfig())
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create backend client")
		}
		breaker := backend.NewCircuitBreakerClient(client, backend.DefaultBreakerConfig())
		source, channels = breaker, breaker
		logging.Info().Str("url", cfg.Backend.URL).Msg("Backend client configured")
	} else {
		logging.Warn().Msg("BACKEND_URL not set, tables are only updated by push notifications")
	}

	index := xref.NewIndex()
	registry := epg.NewRegistry(epg.Dependencies{
		Store:    st,
		Backend:  source,
		Resolver: index,
		Observer: epg.LogObserver{},
	}, cfg.RegistryOptions())

	loaded, err := registry.LoadTables(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load stored tables")
	} else {
		logging.Info().Int("tables", loaded).Msg("Stored tables loaded")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.TreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	scanCfg := cfg.ScannerConfig()

	// Storage layer
	flusher := scanner.NewFlusher(registry, scanCfg, logging.WithComponent("flusher"))
	tree.AddStorageService(services.NewRunnerService(flusher.String(), flusher))

	// Ingest layer
	sc := scanner.NewScanner(registry, channels, scanCfg, logging.WithComponent("scanner"))
	tree.AddIngestService(services.NewRunnerService(sc.String(), sc))

	if cfg.Push.Enabled {
		sub, err := push.NewSubscriber(cfg.SubscriberConfig(), push.NewDispatcher(registry))
		if err != nil {
			logging.Warn().Err(err).Msg("Push subscriber unavailable, continuing without push notifications")
		} else {
			tree.AddIngestService(services.NewPushService(sub))
			logging.Info().Str("url", cfg.Push.URL).Str("topic", cfg.Push.Topic).Msg("Push subscriber added")
		}
	}

	// API layer
	handler := api.NewHandler(registry, index, version)
	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler: api.NewRouter(handler, api.RouterConfig{
			RateLimitRequests: cfg.Server.RateLimitRequests,
			RateLimitWindow:   cfg.Server.RateLimitWindow,
			RequestTimeout:    cfg.Server.Timeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	if err := waitForTree(ctx, errCh); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}
	stop()

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	os.Exit(shutdown(registry, st))
}

// waitForTree blocks until the supervisor tree has stopped and returns its
// result. ServeBackground delivers exactly one value and never closes the
// channel, so it is received once, whether the tree stops on its own or
// after ctx is canceled.
func waitForTree(ctx context.Context, errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logging.Info().Msg("Received shutdown signal, waiting for supervisor to finish...")
		return <-errCh
	}
}

// shutdown flushes the registry and closes the store. It returns the
// process exit code.
func shutdown(registry *epg.Registry, st persistentStore) int {
	code := 0
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := registry.Close(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to flush tables on shutdown")
		code = 1
	}
	if st != nil {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
			code = 1
		}
	}
	logging.Info().Msg("Application stopped gracefully")
	return code
}
