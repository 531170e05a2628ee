// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package config

import (
	"time"

	"github.com/tomtom215/tvguide/internal/backend"
	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/push"
	"github.com/tomtom215/tvguide/internal/scanner"
	"github.com/tomtom215/tvguide/internal/supervisor"
)

// Config holds all application configuration.
type Config struct {
	EPG        EPGConfig        `koanf:"epg"`
	Backend    BackendConfig    `koanf:"backend"`
	Store      StoreConfig      `koanf:"store"`
	Push       PushConfig       `koanf:"push"`
	Server     ServerConfig     `koanf:"server"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// EPGConfig tunes the table registry and its background loops.
type EPGConfig struct {
	PastDays             int           `koanf:"past_days"`
	FutureDays           int           `koanf:"future_days"`
	UpdateInterval       time.Duration `koanf:"update_interval"`
	EmptyTagsInterval    time.Duration `koanf:"empty_tags_interval"`
	IgnoreDatabase       bool          `koanf:"ignore_database"`
	ScanInterval         time.Duration `koanf:"scan_interval"`
	PersistInterval      time.Duration `koanf:"persist_interval"`
	PlayingCheckInterval time.Duration `koanf:"playing_check_interval"`
	MaxConcurrentUpdates int           `koanf:"max_concurrent_updates"`

	// PurgeRemovedTables deletes stored tables of channels that disappear
	// from the backend channel list.
	PurgeRemovedTables bool `koanf:"purge_removed_tables"`
}

// BackendConfig is the upstream guide API.
type BackendConfig struct {
	URL               string        `koanf:"url"`
	APIKey            string        `koanf:"api_key"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	RetryAttempts     uint          `koanf:"retry_attempts"`
	RetryDelay        time.Duration `koanf:"retry_delay"`
}

// StoreConfig selects the persistent store.
type StoreConfig struct {
	// Driver is badger, duckdb or sqlite.
	Driver string `koanf:"driver"`

	// Path is a directory for badger and a file for the SQL drivers.
	Path string `koanf:"path"`

	SyncWrites bool `koanf:"sync_writes"`

	// Threads caps DuckDB worker threads. Zero keeps the DuckDB default.
	Threads int `koanf:"threads"`
}

// PushConfig is the NATS JetStream subscriber for event notifications.
type PushConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	Topic            string        `koanf:"topic"`
	StreamName       string        `koanf:"stream_name"`
	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWait          time.Duration `koanf:"ack_wait"`
}

// ServerConfig is the HTTP API listener.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// SupervisorConfig tunes restart behaviour of the service tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller adds file:line to each entry.
	Caller bool `koanf:"caller"`
}

// RegistryOptions returns the registry options of the epg section.
func (c *Config) RegistryOptions() epg.Options {
	return epg.Options{
		PastDays:             c.EPG.PastDays,
		FutureDays:           c.EPG.FutureDays,
		UpdateInterval:       c.EPG.UpdateInterval,
		EmptyTagsInterval:    c.EPG.EmptyTagsInterval,
		IgnoreDatabase:       c.EPG.IgnoreDatabase,
		MaxConcurrentUpdates: c.EPG.MaxConcurrentUpdates,
		PurgeRemovedTables:   c.EPG.PurgeRemovedTables,
	}
}

// ScannerConfig returns the background loop intervals.
func (c *Config) ScannerConfig() scanner.Config {
	cfg := scanner.DefaultConfig()
	cfg.ScanInterval = c.EPG.ScanInterval
	cfg.PlayingCheckInterval = c.EPG.PlayingCheckInterval
	cfg.PersistInterval = c.EPG.PersistInterval
	return cfg
}

// BackendClientConfig returns the backend client settings.
func (c *Config) BackendClientConfig() backend.Config {
	return backend.Config{
		URL:               c.Backend.URL,
		APIKey:            c.Backend.APIKey,
		Timeout:           c.Backend.Timeout,
		RequestsPerSecond: c.Backend.RequestsPerSecond,
		Burst:             c.Backend.Burst,
		RetryAttempts:     c.Backend.RetryAttempts,
		RetryDelay:        c.Backend.RetryDelay,
	}
}

// SubscriberConfig returns the push subscriber settings. Empty fields keep
// the subscriber defaults.
func (c *Config) SubscriberConfig() *push.SubscriberConfig {
	cfg := push.DefaultSubscriberConfig(c.Push.URL)
	if c.Push.Topic != "" {
		cfg.Topic = c.Push.Topic
	}
	if c.Push.DurableName != "" {
		cfg.DurableName = c.Push.DurableName
	}
	if c.Push.QueueGroup != "" {
		cfg.QueueGroup = c.Push.QueueGroup
	}
	if c.Push.SubscribersCount > 0 {
		cfg.SubscribersCount = c.Push.SubscribersCount
	}
	if c.Push.AckWait > 0 {
		cfg.AckWaitTimeout = c.Push.AckWait
	}
	cfg.StreamName = c.Push.StreamName
	return &cfg
}

// TreeConfig returns the supervisor settings.
func (c *Config) TreeConfig() supervisor.TreeConfig {
	return supervisor.TreeConfig{
		FailureThreshold: c.Supervisor.FailureThreshold,
		FailureDecay:     c.Supervisor.FailureDecay,
		FailureBackoff:   c.Supervisor.FailureBackoff,
		ShutdownTimeout:  c.Supervisor.ShutdownTimeout,
	}
}

// LogConfig returns the logger settings.
func (c *Config) LogConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}
