// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

/*
Package config loads and validates the TVGuide configuration.

# Configuration Sources

Sources are layered with koanf, later layers overriding earlier ones:

 1. Built-in defaults
 2. Optional YAML file: CONFIG_PATH, then config.yaml, config.yml,
    /etc/tvguide/config.yaml and /etc/tvguide/config.yml
 3. Environment variables

Only mapped environment variables are read. Unrelated variables never leak
into the configuration.

# Environment Variables

EPG registry:
  - EPG_PAST_DAYS: Retention horizon in days (default: 1)
  - EPG_FUTURE_DAYS: Fetch window in days (default: 3)
  - EPG_UPDATE_INTERVAL: Minimum time between backend fetches (default: 2h)
  - EPG_EMPTY_TAGS_INTERVAL: Fetch interval for empty tables (default: 12h)
  - EPG_IGNORE_DATABASE: Run without a store (default: false)
  - EPG_SCAN_INTERVAL: Sweep interval (default: 1m)
  - EPG_PERSIST_INTERVAL: Flush interval (default: 5m)
  - EPG_PLAYING_CHECK_INTERVAL: Playing channel check (default: 10s)
  - EPG_MAX_CONCURRENT_UPDATES: Parallel table updates (default: 4)
  - EPG_PURGE_REMOVED_TABLES: Delete tables of removed channels (default: false)

Backend:
  - BACKEND_URL, BACKEND_API_KEY
  - BACKEND_TIMEOUT (default: 30s)
  - BACKEND_REQUESTS_PER_SECOND, BACKEND_BURST (default: 5, 5)
  - BACKEND_RETRY_ATTEMPTS, BACKEND_RETRY_DELAY (default: 3, 1s)

Store:
  - STORE_DRIVER: badger, duckdb or sqlite (default: badger)
  - STORE_PATH (default: /data/tvguide)
  - STORE_SYNC_WRITES, STORE_THREADS

Push notifications:
  - PUSH_ENABLED (default: false)
  - NATS_URL (default: nats://127.0.0.1:4222)
  - PUSH_TOPIC (default: epg.events)
  - PUSH_STREAM_NAME, PUSH_DURABLE_NAME, PUSH_QUEUE_GROUP
  - PUSH_SUBSCRIBERS_COUNT, PUSH_ACK_WAIT

HTTP server:
  - HTTP_HOST (default: 0.0.0.0), HTTP_PORT (default: 8089), HTTP_TIMEOUT
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW (default: 100 per 1m)

Supervisor:
  - SUPERVISOR_FAILURE_THRESHOLD, SUPERVISOR_FAILURE_DECAY
  - SUPERVISOR_FAILURE_BACKOFF, SUPERVISOR_SHUTDOWN_TIMEOUT

Logging:
  - LOG_LEVEL (default: info), LOG_FORMAT (default: json), LOG_CALLER

# Usage

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}
	reg := epg.NewRegistry(deps, cfg.RegistryOptions())
*/
package config
