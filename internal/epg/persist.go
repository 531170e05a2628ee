// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/metrics"
)

// persistBatch is the dirty state taken out of a table for one Persist.
type persistBatch struct {
	info          TableInfo
	changed       map[dirtyKey]*Event
	deleted       map[dirtyKey]*Event
	dirty         bool
	tagsDirty     bool
	lastScanDirty bool
	lastScan      time.Time
}

// takeBatchLocked swaps the dirty state out of the table. The caller holds
// t.mu.
func (t *Table) takeBatchLocked() persistBatch {
	b := persistBatch{
		info:          t.info,
		changed:       t.changed,
		deleted:       t.deleted,
		dirty:         t.dirty,
		tagsDirty:     t.tagsDirty,
		lastScanDirty: t.lastScanDirty,
		lastScan:      t.lastScan,
	}
	t.changed = make(map[dirtyKey]*Event)
	t.deleted = make(map[dirtyKey]*Event)
	t.dirty = false
	t.tagsDirty = false
	t.lastScanDirty = false
	return b
}

// restoreBatchLocked puts a failed batch back without overriding anything
// that became dirty while the batch was being written.
func (t *Table) restoreBatchLocked(b persistBatch) {
	for k, ev := range b.changed {
		if _, ok := t.changed[k]; ok {
			continue
		}
		// Removed after the batch was taken.
		if _, ok := t.deleted[k]; ok {
			continue
		}
		t.changed[k] = ev
	}
	for k, ev := range b.deleted {
		if _, ok := t.deleted[k]; !ok {
			t.deleted[k] = ev
		}
	}
	t.dirty = t.dirty || b.dirty
	t.tagsDirty = t.tagsDirty || b.tagsDirty
	t.lastScanDirty = t.lastScanDirty || b.lastScanDirty
}

// Persist writes the table metadata, the deleted and changed events and the
// last scan time to the store, then commits. It is a no-op when the database
// is bypassed or nothing is pending. On failure the pending state is kept for
// the next call.
func (t *Table) Persist(ctx context.Context) error {
	if t.opts.IgnoreDatabase {
		return nil
	}

	t.mu.Lock()
	if !t.needsSaveLocked() {
		t.mu.Unlock()
		metrics.EPGPersists.WithLabelValues("skipped").Inc()
		return nil
	}
	store := t.deps.Store
	if store == nil {
		t.mu.Unlock()
		metrics.RecordPersist(0, 0, 0, ErrStoreUnavailable)
		return ErrStoreUnavailable
	}
	batch := t.takeBatchLocked()
	// Values written to the store are copied under the lock.
	upserts := make([]*Event, 0, len(batch.changed))
	for _, ev := range batch.changed {
		upserts = append(upserts, ev.clone())
	}
	deletes := make([]*Event, 0, len(batch.deleted))
	for _, ev := range batch.deleted {
		deletes = append(deletes, ev.clone())
	}
	t.mu.Unlock()

	began := time.Now()
	id, err := writeBatch(ctx, store, batch, upserts, deletes)
	metrics.RecordPersist(time.Since(began), len(upserts), len(deletes), err)

	t.mu.Lock()
	if id > 0 && t.info.ID != id {
		t.info.ID = id
		for _, ev := range t.events {
			ev.TableID = id
		}
	}
	if err != nil {
		t.restoreBatchLocked(batch)
	}
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to persist table %q: %w", batch.info.ChannelUID, err)
	}

	logging.Debug().
		Int64("table_id", id).
		Str("channel_uid", batch.info.ChannelUID).
		Int("upserts", len(upserts)).
		Int("deletes", len(deletes)).
		Msg("EPG table persisted")
	return nil
}

// writeBatch performs the store calls of one Persist and returns the table id,
// which is known as soon as the table metadata is written.
func writeBatch(ctx context.Context, store Store, b persistBatch, upserts, deletes []*Event) (int64, error) {
	id := b.info.ID
	if id <= 0 || b.dirty {
		assigned, err := store.UpsertTable(ctx, b.info)
		if err != nil {
			return id, fmt.Errorf("upsert table: %w", err)
		}
		id = assigned
	}

	for _, ev := range deletes {
		var err error
		if ev.BroadcastID != InvalidBroadcastID {
			err = store.DeleteEvent(ctx, id, ev.BroadcastID, ev.Start)
		} else {
			err = store.DeleteEventAt(ctx, id, ev.Start)
		}
		if err != nil {
			return id, fmt.Errorf("delete event %d: %w", ev.BroadcastID, err)
		}
	}

	for _, ev := range upserts {
		ev.TableID = id
		if err := store.UpsertEvent(ctx, id, ev); err != nil {
			return id, fmt.Errorf("upsert event %d: %w", ev.BroadcastID, err)
		}
	}

	if b.lastScanDirty {
		if err := store.SetLastScanTime(ctx, id, b.lastScan); err != nil {
			return id, fmt.Errorf("set last scan time: %w", err)
		}
	}

	if err := store.Commit(ctx); err != nil {
		return id, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}
