// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

/*
Package supervisor provides process supervision for TVGuide using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of the long-running loops of the guide: the persist flusher, the
backend scan loop, the push subscriber and the HTTP API. Crashed services are
restarted with backoff and a failing layer does not take the others down.

# Overview

The supervisor tree organizes services into three layers:

	RootSupervisor ("tvguide")
	├── StorageSupervisor ("storage-layer")
	│   └── epg-flusher
	├── IngestSupervisor ("ingest-layer")
	│   ├── epg-scanner
	│   └── push-subscriber (if PUSH_ENABLED, build tag: nats)
	└── APISupervisor ("api-layer")
	    └── http-server

This hierarchy ensures that:
  - A backend outage restarts only the ingest layer
  - The API keeps answering from the tables already in memory
  - A store failure in the flusher does not drop HTTP connections

# Key Features

Automatic Restart:
  - Crashed services are restarted by their layer supervisor
  - Repeated failures trigger FailureBackoff before the next restart
  - Failure counts decay over FailureDecay seconds

Failure Isolation:
  - Each layer is a child supervisor with its own failure counter
  - Child supervisor failures are handled by the root, not propagated
  - RemoveIngestService lets main drop a subscriber without a restart

Graceful Shutdown:
  - Canceling the context passed to Serve or ServeBackground stops every
    layer
  - The flusher writes a final batch on its way out
  - Each service gets ShutdownTimeout before it is reported as unstopped

Structured Logging:
  - Supervisor events go through sutureslog to a slog.Logger
  - logging.NewSlogLogger routes them into the zerolog stream
  - Service names come from fmt.Stringer on each wrapper

# Usage Example

Setup in cmd/tvguide:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.TreeConfig())
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddStorageService(services.NewRunnerService(flusher.String(), flusher))
	tree.AddIngestService(services.NewRunnerService(sc.String(), sc))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	errCh := tree.ServeBackground(ctx)

Waiting for the tree:

	// ServeBackground sends exactly one value and never closes the
	// channel. Receive it once; ranging over errCh blocks forever.
	select {
	case err := <-errCh:
	    // the tree stopped on its own
	case <-ctx.Done():
	    err := <-errCh
	}

# Configuration

TreeConfig controls restart behavior:

	config := supervisor.TreeConfig{
	    FailureThreshold: 5.0,              // Failures before backoff
	    FailureDecay:     30.0,             // Seconds for failures to decay
	    FailureBackoff:   15 * time.Second, // Backoff duration
	    ShutdownTimeout:  10 * time.Second, // Per-service shutdown timeout
	}

Zero fields take suture's defaults. The values are read from the
SUPERVISOR_* environment variables or the supervisor section of the config
file (see internal/config).

# Failure Handling

The supervisor uses a failure counter with exponential decay:

 1. Each service failure increments the counter
 2. The counter decays over FailureDecay seconds
 3. When it exceeds FailureThreshold the supervisor enters backoff
 4. During backoff restarts wait FailureBackoff

Typical scenarios:

	# Backend down for one scan
	epg-scanner returns an error -> restarted at once

	# Backend flapping
	epg-scanner fails 5x in 10s -> ingest-layer waits 15s

	# NATS unreachable
	push-subscriber fails -> restarted under the same counter as the scanner

# Service Interface

All services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - ctx.Err(): shutdown was requested, not counted as a failure
  - any other error: the service crashed and is restarted
  - nil: the service is done and is not restarted

# What Is NOT Supervised

The EPG store is not supervised. Badger, DuckDB and SQLite are embedded
libraries opened once by main and closed after the tree has stopped, when the
registry has flushed its last batch. The backend client is not a service
either; its circuit breaker isolates failures per request.

# Debugging Shutdown Issues

If services do not stop within the timeout:

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
	    logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

Common causes:
  - A backend fetch without a context deadline
  - A persist blocked on a store lock held elsewhere
  - A push handler ignoring cancellation

# Thread Safety

SupervisorTree is safe for concurrent use. Services may be added and removed
from any goroutine while the tree is running.

# See Also

  - internal/supervisor/services: service wrappers
  - internal/scanner: the flusher and scan loops
  - github.com/thejerf/suture/v4: underlying library
*/
package supervisor
