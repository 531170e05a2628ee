// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

/*
Package services provides suture.Service wrappers for TVGuide components.

This package adapts the guide's long-running components to the suture v4
supervision model, translating their lifecycle patterns (RunWithContext,
Run/Close, ListenAndServe/Shutdown) into suture's context-aware Serve
pattern.

# Overview

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle:
  - Lifecycle translation to the Serve pattern
  - Graceful shutdown via context cancellation
  - Error propagation for supervisor restart decisions
  - Service identification via fmt.Stringer

# Available Services

Runner (RunnerService):
  - Wraps anything with RunWithContext(ctx) error
  - Used for scanner.Scanner (ingest layer) and scanner.Flusher (storage
    layer)
  - The runner owns its own ticker and final work on cancellation

Push Subscriber (PushService):
  - Wraps push.Subscriber with its Run/Close lifecycle
  - Closes the NATS connection once ctx is canceled
  - Treats a subscriber that returns on its own as a failure
  - Build tag: nats (the stub subscriber fails at construction)

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe to Serve
  - Drains open requests for the configured shutdown timeout

# Usage Example

Registering the guide's services:

	tree, _ := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.TreeConfig())

	flusher := scanner.NewFlusher(registry, scanCfg, logging.WithComponent("flusher"))
	tree.AddStorageService(services.NewRunnerService(flusher.String(), flusher))

	sc := scanner.NewScanner(registry, channels, scanCfg, logging.WithComponent("scanner"))
	tree.AddIngestService(services.NewRunnerService(sc.String(), sc))

	if sub, err := push.NewSubscriber(cfg.SubscriberConfig(), push.NewDispatcher(registry)); err == nil {
	    tree.AddIngestService(services.NewPushService(sub))
	}

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

# Lifecycle Patterns

RunWithContext Pattern:

	type ContextRunner interface {
	    RunWithContext(ctx context.Context) error
	}

	// Wrapped as:
	func (r *RunnerService) Serve(ctx context.Context) error {
	    return r.runner.RunWithContext(ctx)
	}

Run/Close Pattern:

	type PushRunner interface {
	    Run(ctx context.Context) error
	    Close() error
	}

	// Wrapped as:
	func (p *PushService) Serve(ctx context.Context) error {
	    err := p.subscriber.Run(ctx)
	    if ctx.Err() != nil {
	        if cerr := p.subscriber.Close(); cerr != nil {
	            return cerr
	        }
	        return ctx.Err()
	    }
	    return err
	}

ListenAndServe Pattern:

	type HTTPServer interface {
	    ListenAndServe() error
	    Shutdown(ctx context.Context) error
	}

	// Wrapped as:
	func (h *HTTPServerService) Serve(ctx context.Context) error {
	    go h.server.ListenAndServe()
	    <-ctx.Done()
	    return h.server.Shutdown(shutdownCtx)
	}

# Error Handling

Return values determine supervisor behavior:

	ctx.Err()   -> Shutdown requested, normal termination
	error       -> Service crashed, supervisor will restart
	nil         -> Service finished, will not restart

Every wrapper returns ctx.Err() on a normal shutdown so suture does not count
the stop as a failure. http.ErrServerClosed is mapped to nil before that
decision is made.

# Service Identification

All services implement fmt.Stringer. Suture and sutureslog use the name in
their events:

	epg-flusher
	epg-scanner
	push-subscriber
	http-server

# Testing

Wrappers are tested against small mocks of the wrapped interfaces:

	srv := newMockHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	<-srv.started
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
	    t.Errorf("Serve() = %v, want context.Canceled", err)
	}

# Thread Safety

A wrapper holds no mutable state of its own. Serve must not be called
concurrently on the same wrapper; suture never does.

# See Also

  - internal/supervisor: SupervisorTree that manages these services
  - internal/scanner: Scanner and Flusher
  - internal/push: Subscriber and Dispatcher
  - github.com/thejerf/suture/v4: underlying supervision library
*/
package services
