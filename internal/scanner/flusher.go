// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tvguide/internal/metrics"
)

// Flusher persists the registry every PersistInterval and once more when
// stopped.
type Flusher struct {
	registry Registry
	interval time.Duration
	// finalTimeout bounds the flush that runs after cancellation.
	finalTimeout time.Duration
	logger       zerolog.Logger
}

// NewFlusher creates a flusher.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewFlusher(registry Registry, cfg Config, logger zerolog.Logger) *Flusher {
	interval := cfg.PersistInterval
	if interval <= 0 {
		interval = DefaultConfig().PersistInterval
	}
	return &Flusher{
		registry:     registry,
		interval:     interval,
		finalTimeout: 30 * time.Second,
		logger:       logger.With().Str("component", "flusher").Logger(),
	}
}

// RunWithContext flushes on every tick until ctx is canceled, then flushes
// one last time with a fresh context.
func (f *Flusher) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), f.finalTimeout)
			err := f.Flush(finalCtx)
			cancel()
			if err != nil {
				f.logger.Error().Err(err).Msg("Final EPG flush failed")
			} else {
				f.logger.Info().Msg("Final EPG flush complete")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := f.Flush(ctx); err != nil && ctx.Err() == nil {
				f.logger.Warn().Err(err).Msg("EPG flush failed")
			}
		}
	}
}

// Flush persists every table, then purges expired events. Both steps run
// even when the first fails.
func (f *Flusher) Flush(ctx context.Context) error {
	start := time.Now()
	persistErr := f.registry.PersistAll(ctx)
	removed, purgeErr := f.registry.PurgeExpired(ctx)
	err := errors.Join(persistErr, purgeErr)
	metrics.RecordScannerRun("flush", time.Since(start), err)

	f.logger.Debug().
		Int("expired_removed", removed).
		Dur("duration", time.Since(start)).
		Msg("EPG flush complete")
	return err
}

// String implements fmt.Stringer for suture.
func (f *Flusher) String() string {
	return "epg-flusher"
}
