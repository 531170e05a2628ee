// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/store"
)

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.validateEPG(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validatePush(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateEPG() error {
	if c.EPG.PastDays < 0 {
		return fmt.Errorf("EPG_PAST_DAYS must not be negative")
	}
	if c.EPG.FutureDays < 0 {
		return fmt.Errorf("EPG_FUTURE_DAYS must not be negative")
	}
	if c.EPG.MaxConcurrentUpdates < 1 {
		return fmt.Errorf("EPG_MAX_CONCURRENT_UPDATES must be at least 1")
	}
	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"EPG_UPDATE_INTERVAL", c.EPG.UpdateInterval},
		{"EPG_EMPTY_TAGS_INTERVAL", c.EPG.EmptyTagsInterval},
		{"EPG_SCAN_INTERVAL", c.EPG.ScanInterval},
		{"EPG_PERSIST_INTERVAL", c.EPG.PersistInterval},
		{"EPG_PLAYING_CHECK_INTERVAL", c.EPG.PlayingCheckInterval},
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", iv.name, iv.value)
		}
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.URL == "" {
		return nil
	}
	if err := validateHTTPURL(c.Backend.URL, "BACKEND_URL"); err != nil {
		return err
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	if c.Backend.RequestsPerSecond < 0 {
		return fmt.Errorf("BACKEND_REQUESTS_PER_SECOND must not be negative")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case store.DriverBadger, store.DriverDuckDB, store.DriverSQLite:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: badger, duckdb, sqlite (got %q)", c.Store.Driver)
	}
	if c.Store.Path == "" && !c.EPG.IgnoreDatabase {
		return fmt.Errorf("STORE_PATH is required unless EPG_IGNORE_DATABASE is set")
	}
	if c.Store.Threads < 0 {
		return fmt.Errorf("STORE_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validatePush() error {
	if !c.Push.Enabled {
		return nil
	}
	if c.Push.URL == "" {
		return fmt.Errorf("NATS_URL is required when PUSH_ENABLED=true")
	}
	u, err := url.Parse(c.Push.URL)
	if err != nil {
		return fmt.Errorf("NATS_URL failed to parse URL: %w", err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("NATS_URL scheme must be nats, tls, ws or wss, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("NATS_URL host is required")
	}
	if c.Push.Topic == "" {
		return fmt.Errorf("PUSH_TOPIC is required when PUSH_ENABLED=true")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateHTTPURL validates that a URL is an http or https base URL.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}

	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}

	return nil
}
