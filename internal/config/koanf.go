// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/tvguide/internal/store"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tvguide/config.yaml",
	"/etc/tvguide/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
func defaultConfig() *Config {
	return &Config{
		EPG: EPGConfig{
			PastDays:             1,
			FutureDays:           3,
			UpdateInterval:       2 * time.Hour,
			EmptyTagsInterval:    12 * time.Hour,
			ScanInterval:         time.Minute,
			PersistInterval:      5 * time.Minute,
			PlayingCheckInterval: 10 * time.Second,
			MaxConcurrentUpdates: 4,
		},
		Backend: BackendConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			RetryAttempts:     3,
			RetryDelay:        time.Second,
		},
		Store: StoreConfig{
			Driver: store.DriverBadger,
			Path:   "/data/tvguide",
		},
		Push: PushConfig{
			URL:              "nats://127.0.0.1:4222",
			Topic:            "epg.events",
			DurableName:      "tvguide",
			QueueGroup:       "tvguide",
			SubscribersCount: 1,
			AckWait:          30 * time.Second,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8089,
			Timeout:           30 * time.Second,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults
//  2. Config file: optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables: override any mapped setting
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// STORE_DRIVER -> store.driver
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" when none
// is found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	"epg_past_days":              "epg.past_days",
	"epg_future_days":            "epg.future_days",
	"epg_update_interval":        "epg.update_interval",
	"epg_empty_tags_interval":    "epg.empty_tags_interval",
	"epg_ignore_database":        "epg.ignore_database",
	"epg_scan_interval":          "epg.scan_interval",
	"epg_persist_interval":       "epg.persist_interval",
	"epg_playing_check_interval": "epg.playing_check_interval",
	"epg_max_concurrent_updates": "epg.max_concurrent_updates",
	"epg_purge_removed_tables":   "epg.purge_removed_tables",

	"backend_url":                 "backend.url",
	"backend_api_key":             "backend.api_key",
	"backend_timeout":             "backend.timeout",
	"backend_requests_per_second": "backend.requests_per_second",
	"backend_burst":               "backend.burst",
	"backend_retry_attempts":      "backend.retry_attempts",
	"backend_retry_delay":         "backend.retry_delay",

	"store_driver":      "store.driver",
	"store_path":        "store.path",
	"store_sync_writes": "store.sync_writes",
	"store_threads":     "store.threads",

	"push_enabled":           "push.enabled",
	"nats_url":               "push.url",
	"push_topic":             "push.topic",
	"push_stream_name":       "push.stream_name",
	"push_durable_name":      "push.durable_name",
	"push_queue_group":       "push.queue_group",
	"push_subscribers_count": "push.subscribers_count",
	"push_ack_wait":          "push.ack_wait",

	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
