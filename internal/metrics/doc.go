// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

/*
Package metrics holds the Prometheus instrumentation of the guide engine.

All collectors are registered on the default registry through promauto and
exposed by the API server at /metrics:

	curl http://localhost:8089/metrics

# Available Metrics

Tables:
  - epg_tables: tables held by the registry
  - epg_updates_total{result}: update attempts ("success", "not_due", "fetch_error")
  - epg_update_duration_seconds: fetch plus merge duration
  - epg_events_merged_total, epg_overlaps_fixed_total{action}, epg_events_cleaned_total

Persistence:
  - epg_persist_total{result}, epg_persist_duration_seconds
  - epg_persisted_events_total{operation}: rows upserted or deleted

Backend:
  - backend_fetch_duration_seconds{operation}, backend_fetch_errors_total{operation,status_code}
  - circuit_breaker_state{name}, circuit_breaker_requests_total{name,result},
    circuit_breaker_transitions_total{name,from,to}

Scheduler and push:
  - scanner_runs_total{task,result}, scanner_run_duration_seconds{task}
  - push_notifications_total{state,result}

API:
  - api_requests_total{method,endpoint,status_code}, api_request_duration_seconds{method,endpoint}

The Record* helpers keep label values consistent between call sites.
*/
package metrics
