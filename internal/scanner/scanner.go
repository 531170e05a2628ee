// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

// Package scanner drives the registry on a schedule: a scan loop that syncs
// channels and sweeps due tables, a fast playing-event check, and a flusher
// that persists deltas and purges expired events.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/metrics"
)

// Registry is the part of *epg.Registry the scheduler drives.
type Registry interface {
	SyncChannels(ctx context.Context, channels []epg.Channel) error
	UpdateAll(ctx context.Context, force bool) error
	CheckPlayingEvents() bool
	PersistAll(ctx context.Context) error
	PurgeExpired(ctx context.Context) (int, error)
}

// Config holds the scheduler intervals.
type Config struct {
	ScanInterval         time.Duration
	PlayingCheckInterval time.Duration
	PersistInterval      time.Duration

	// SweepTimeout bounds one scan pass. Zero means no bound.
	SweepTimeout time.Duration
}

// DefaultConfig returns the production intervals.
func DefaultConfig() Config {
	return Config{
		ScanInterval:         time.Minute,
		PlayingCheckInterval: 10 * time.Second,
		PersistInterval:      5 * time.Minute,
		SweepTimeout:         10 * time.Minute,
	}
}

// Scanner periodically syncs channels and updates due tables.
type Scanner struct {
	registry Registry
	channels epg.ChannelSource
	config   Config
	logger   zerolog.Logger
}

// NewScanner creates a scanner. channels may be nil, in which case the
// registry keeps the tables it has.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewScanner(registry Registry, channels epg.ChannelSource, cfg Config, logger zerolog.Logger) *Scanner {
	def := DefaultConfig()
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = def.ScanInterval
	}
	if cfg.PlayingCheckInterval <= 0 {
		cfg.PlayingCheckInterval = def.PlayingCheckInterval
	}
	return &Scanner{
		registry: registry,
		channels: channels,
		config:   cfg,
		logger:   logger.With().Str("component", "scanner").Logger(),
	}
}

// RunWithContext scans once immediately, then on every tick until ctx is
// canceled. Scan failures are logged and retried on the next tick.
func (s *Scanner) RunWithContext(ctx context.Context) error {
	s.logger.Info().
		Dur("scan_interval", s.config.ScanInterval).
		Dur("playing_check_interval", s.config.PlayingCheckInterval).
		Msg("EPG scanner starting")

	s.scan(ctx)

	scanTicker := time.NewTicker(s.config.ScanInterval)
	defer scanTicker.Stop()
	playingTicker := time.NewTicker(s.config.PlayingCheckInterval)
	defer playingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("EPG scanner shutting down")
			return ctx.Err()
		case <-scanTicker.C:
			s.scan(ctx)
		case <-playingTicker.C:
			s.checkPlaying()
		}
	}
}

// Scan runs one channel sync and table sweep.
func (s *Scanner) Scan(ctx context.Context) error {
	if s.config.SweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SweepTimeout)
		defer cancel()
	}

	if s.channels != nil {
		channels, err := s.channels.ListChannels(ctx)
		if err != nil {
			return fmt.Errorf("failed to list channels: %w", err)
		}
		if err := s.registry.SyncChannels(ctx, channels); err != nil {
			s.logger.Warn().Err(err).Msg("Channel sync incomplete")
		}
	}
	return s.registry.UpdateAll(ctx, false)
}

func (s *Scanner) scan(ctx context.Context) {
	start := time.Now()
	err := s.Scan(ctx)
	metrics.RecordScannerRun("scan", time.Since(start), err)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Msg("EPG scan failed")
		return
	}
	s.logger.Debug().Dur("duration", time.Since(start)).Msg("EPG scan complete")
}

func (s *Scanner) checkPlaying() {
	start := time.Now()
	changed := s.registry.CheckPlayingEvents()
	metrics.RecordScannerRun("playing_check", time.Since(start), nil)
	if changed {
		s.logger.Debug().Msg("Playing event changed")
	}
}

// String implements fmt.Stringer for suture.
func (s *Scanner) String() string {
	return "epg-scanner"
}
