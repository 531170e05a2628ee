// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/metrics"
)

// OverlapStats counts the repairs made by FixOverlappingEvents.
type OverlapStats struct {
	Trimmed int
	Dropped int
}

// UpdateEntries merges every event of incoming into t, in ascending start
// order, then repairs overlaps and records the scan time. Merging only adds
// and updates; events missing from incoming are kept.
func (t *Table) UpdateEntries(incoming *Table, markForPersist bool) {
	events := incoming.Get()
	refs := make([]crossRefs, len(events))
	for i, ev := range events {
		refs[i] = t.resolve(ev)
	}

	t.mu.Lock()
	merged := 0
	for i, ev := range events {
		if _, ok := t.apply(ev, refs[i], SourceMerge, markForPersist); ok {
			merged++
		}
	}
	stats := t.fixOverlappingEventsLocked(markForPersist)

	t.lastScan = t.opts.now()
	t.lastScanLoaded = true
	t.lastScanDirty = true
	t.dirty = true
	uid := t.info.ChannelUID
	t.mu.Unlock()

	metrics.EPGEventsMerged.Add(float64(merged))
	if stats.Trimmed > 0 || stats.Dropped > 0 {
		logging.Debug().
			Str("channel_uid", uid).
			Int("trimmed", stats.Trimmed).
			Int("dropped", stats.Dropped).
			Msg("Fixed overlapping EPG events")
	}

	t.deps.Observer.TableChanged(uid)
}

// FixOverlappingEvents makes one forward pass over the events. When two
// events overlap the earlier one is trimmed to end where the later one
// starts; a later event lying entirely within the earlier one is dropped.
func (t *Table) FixOverlappingEvents(markForPersist bool) OverlapStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fixOverlappingEventsLocked(markForPersist)
}

func (t *Table) fixOverlappingEventsLocked(markForPersist bool) OverlapStats {
	var stats OverlapStats
	var previous *Event

	for i := 0; i < len(t.events); {
		current := t.events[i]
		if previous == nil {
			previous = current
			i++
			continue
		}

		switch {
		case !previous.End.Before(current.End):
			// current is contained in previous; previous stays.
			t.removeAt(i, markForPersist)
			stats.Dropped++
			continue
		case previous.End.After(current.Start):
			previous.End = current.Start
			if markForPersist {
				t.changed[keyOf(previous)] = previous
			}
			stats.Trimmed++
		}
		previous = current
		i++
	}

	if stats.Trimmed > 0 {
		metrics.EPGOverlapsFixed.WithLabelValues("trimmed").Add(float64(stats.Trimmed))
	}
	if stats.Dropped > 0 {
		metrics.EPGOverlapsFixed.WithLabelValues("dropped").Add(float64(stats.Dropped))
	}
	return stats
}
