// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import "time"

// GapTolerance is how long an ended event is still reported as "now" when
// nothing else is on air.
const GapTolerance = 5 * time.Minute

const day = 24 * time.Hour

// Options tune the tables of a registry.
type Options struct {
	// PastDays is the retention horizon: events that ended more than
	// PastDays ago are removed.
	PastDays int

	// FutureDays bounds the fetch window of a registry sweep.
	FutureDays int

	// UpdateInterval is the minimum time between two backend fetches.
	UpdateInterval time.Duration

	// EmptyTagsInterval replaces UpdateInterval for non-radio tables
	// without any events.
	EmptyTagsInterval time.Duration

	// IgnoreDatabase bypasses the store for loading and persisting.
	IgnoreDatabase bool

	// MaxConcurrentUpdates bounds the parallel table updates of a sweep.
	MaxConcurrentUpdates int

	// PurgeRemovedTables deletes the stored table when its channel goes away.
	PurgeRemovedTables bool

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		PastDays:             1,
		FutureDays:           3,
		UpdateInterval:       2 * time.Hour,
		EmptyTagsInterval:    12 * time.Hour,
		MaxConcurrentUpdates: 4,
	}
}

func (o Options) now() time.Time {
	if o.Clock != nil {
		return o.Clock().UTC()
	}
	return time.Now().UTC()
}

// retentionHorizon returns the cut-off before which ended events are dropped.
func (o Options) retentionHorizon(now time.Time) time.Time {
	return now.Add(-time.Duration(o.PastDays) * day)
}

// window returns the fetch window of a sweep at now.
func (o Options) window(now time.Time) (time.Time, time.Time) {
	return o.retentionHorizon(now), now.Add(time.Duration(o.FutureDays) * day)
}

// epoch is the last scan time of a table that was never scanned.
var epoch = time.Unix(0, 0).UTC()
