// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/metrics"
)

// Registry owns the tables of all channels, keyed by channel UID.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table

	deps Dependencies
	opts Options

	playing atomic.Pointer[string]
}

// NewRegistry creates an empty registry whose tables share deps and opts.
func NewRegistry(deps Dependencies, opts Options) *Registry {
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if opts.MaxConcurrentUpdates <= 0 {
		opts.MaxConcurrentUpdates = 1
	}
	return &Registry{
		tables: make(map[string]*Table),
		deps:   deps,
		opts:   opts,
	}
}

// Options returns the options the registry was created with.
func (r *Registry) Options() Options {
	return r.opts
}

func (r *Registry) newTable(info TableInfo) *Table {
	t := NewTable(info, r.deps, r.opts)
	t.isPlaying = r.IsPlayingChannel
	return t
}

// GetOrCreate returns the table of ch, creating an unloaded one if needed.
func (r *Registry) GetOrCreate(ch Channel) *Table {
	r.mu.RLock()
	t, ok := r.tables[ch.UID]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[ch.UID]; ok {
		return t
	}
	t = r.newTable(TableInfo{
		Name:       ch.Name,
		ChannelUID: ch.UID,
		ClientID:   ch.ClientID,
		IsRadio:    ch.IsRadio,
	})
	t.dirty = true
	r.tables[ch.UID] = t
	metrics.EPGTables.Set(float64(len(r.tables)))
	return t
}

// Get returns the table of a channel.
func (r *Registry) Get(channelUID string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[channelUID]
	return t, ok
}

// Tables returns all tables ordered by channel UID.
func (r *Registry) Tables() []*Table {
	r.mu.RLock()
	uids := make([]string, 0, len(r.tables))
	for uid := range r.tables {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	out := make([]*Table, len(uids))
	for i, uid := range uids {
		out[i] = r.tables[uid]
	}
	r.mu.RUnlock()
	return out
}

// Len returns the number of tables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// Remove drops the table of a channel and returns it. Pending deltas are not
// persisted; callers that need them flush the table first.
func (r *Registry) Remove(channelUID string) (*Table, bool) {
	r.mu.Lock()
	t, ok := r.tables[channelUID]
	if ok {
		delete(r.tables, channelUID)
	}
	n := len(r.tables)
	r.mu.Unlock()

	if ok {
		t.Clear()
		metrics.EPGTables.Set(float64(n))
	}
	return t, ok
}

// LoadTables creates a table for every table known to the store. Events are
// loaded lazily on the first update.
func (r *Registry) LoadTables(ctx context.Context) (int, error) {
	if r.opts.IgnoreDatabase {
		return 0, nil
	}
	if r.deps.Store == nil {
		return 0, ErrStoreUnavailable
	}
	infos, err := r.deps.Store.ListTables(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tables: %w", err)
	}

	r.mu.Lock()
	added := 0
	for _, info := range infos {
		if info.ChannelUID == "" {
			continue
		}
		if _, ok := r.tables[info.ChannelUID]; ok {
			continue
		}
		r.tables[info.ChannelUID] = r.newTable(info)
		added++
	}
	n := len(r.tables)
	r.mu.Unlock()

	metrics.EPGTables.Set(float64(n))
	logging.Info().Int("tables", added).Msg("EPG tables restored from store")
	return added, nil
}

// SyncChannels reconciles the registry with the channel list of the backend.
// New channels get a table, known ones get their metadata refreshed. Tables
// of channels no longer listed are persisted, dropped and, with
// PurgeRemovedTables, deleted from the store.
func (r *Registry) SyncChannels(ctx context.Context, channels []Channel) error {
	keep := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if ch.UID == "" {
			continue
		}
		keep[ch.UID] = struct{}{}
		if t, ok := r.Get(ch.UID); ok {
			t.SetChannel(ch)
			continue
		}
		r.GetOrCreate(ch)
	}

	var errs []error
	for _, t := range r.Tables() {
		uid := t.ChannelUID()
		if _, ok := keep[uid]; ok {
			continue
		}
		if err := t.Persist(ctx); err != nil && !errors.Is(err, ErrStoreUnavailable) {
			errs = append(errs, err)
			continue
		}
		r.Remove(uid)
		if id := t.ID(); r.opts.PurgeRemovedTables && id > 0 && r.deps.Store != nil && !r.opts.IgnoreDatabase {
			if err := r.deps.Store.DeleteTable(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("failed to purge table %q: %w", uid, err))
			}
		}
		logging.Info().Str("channel_uid", uid).Msg("Removed EPG table of vanished channel")
	}
	return errors.Join(errs...)
}

// UpdateAll updates every table over the window [now - PastDays,
// now + FutureDays], at most MaxConcurrentUpdates at a time. Each table is
// only touched through its own lock. Errors of individual tables are joined.
func (r *Registry) UpdateAll(ctx context.Context, force bool) error {
	start, end := r.opts.window(r.opts.now())

	p := pool.New().WithMaxGoroutines(r.opts.MaxConcurrentUpdates).WithContext(ctx)
	for _, t := range r.Tables() {
		p.Go(func(ctx context.Context) error {
			return t.Update(ctx, start, end, r.opts.UpdateInterval, force)
		})
	}
	return p.Wait()
}

// Update forces an update of one table.
func (r *Registry) Update(ctx context.Context, channelUID string) error {
	t, ok := r.Get(channelUID)
	if !ok {
		return ErrTableNotFound
	}
	start, end := r.opts.window(r.opts.now())
	return t.Update(ctx, start, end, r.opts.UpdateInterval, true)
}

// PersistAll persists every table and joins the errors.
func (r *Registry) PersistAll(ctx context.Context) error {
	var errs []error
	for _, t := range r.Tables() {
		if err := t.Persist(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PurgeExpired runs Cleanup on every table and removes expired events from
// the store.
func (r *Registry) PurgeExpired(ctx context.Context) (int, error) {
	horizon := r.opts.retentionHorizon(r.opts.now())
	removed := 0
	for _, t := range r.Tables() {
		removed += t.Cleanup(horizon)
	}
	if r.opts.IgnoreDatabase || r.deps.Store == nil {
		return removed, nil
	}
	if err := r.deps.Store.DeleteEventsBefore(ctx, horizon); err != nil {
		return removed, fmt.Errorf("failed to purge expired events: %w", err)
	}
	if err := r.deps.Store.Commit(ctx); err != nil {
		return removed, fmt.Errorf("failed to commit purge: %w", err)
	}
	return removed, nil
}

// SetPlayingChannel marks the channel currently being watched.
func (r *Registry) SetPlayingChannel(channelUID string) {
	r.playing.Store(&channelUID)
	if t, ok := r.Get(channelUID); ok {
		t.CheckPlayingEvent()
	}
}

// ClearPlayingChannel forgets the playing channel.
func (r *Registry) ClearPlayingChannel() {
	r.playing.Store(nil)
}

// PlayingChannel returns the UID of the playing channel.
func (r *Registry) PlayingChannel() (string, bool) {
	p := r.playing.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// IsPlayingChannel reports whether channelUID is being watched.
func (r *Registry) IsPlayingChannel(channelUID string) bool {
	uid, ok := r.PlayingChannel()
	return ok && uid == channelUID
}

// CheckPlayingEvents refreshes the event on air of the playing channel and
// reports whether it changed.
func (r *Registry) CheckPlayingEvents() bool {
	uid, ok := r.PlayingChannel()
	if !ok {
		return false
	}
	t, ok := r.Get(uid)
	if !ok {
		return false
	}
	return t.CheckPlayingEvent()
}

// RefreshCrossReferences re-resolves timers and recordings of one channel, or
// of every channel when channelUID is empty.
func (r *Registry) RefreshCrossReferences(channelUID string) {
	if channelUID != "" {
		if t, ok := r.Get(channelUID); ok {
			t.ResolveCrossReferences()
		}
		return
	}
	for _, t := range r.Tables() {
		t.ResolveCrossReferences()
	}
}

// Close persists every table, then drops them all. The tables are dropped
// even when persisting fails; the error reports what was lost.
func (r *Registry) Close(ctx context.Context) error {
	err := r.PersistAll(ctx)
	if errors.Is(err, ErrStoreUnavailable) && r.deps.Store == nil {
		err = nil
	}

	r.mu.Lock()
	tables := r.tables
	r.tables = make(map[string]*Table)
	r.mu.Unlock()

	for _, t := range tables {
		t.Clear()
	}
	metrics.EPGTables.Set(0)
	return err
}
