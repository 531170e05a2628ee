// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/metrics"
)

// Dependencies are the collaborators shared by the tables of a registry.
// Every field is optional.
type Dependencies struct {
	Store    Store
	Backend  BackendClient
	Resolver Resolver
	Observer Observer
}

// Table is the time-ordered event collection of one channel.
type Table struct {
	mu sync.Mutex
	// loadMu serializes Load so the store is read once.
	loadMu sync.Mutex

	info   TableInfo
	events []*Event // ascending by Start

	loaded         bool
	lastScan       time.Time
	lastScanLoaded bool

	changed       map[dirtyKey]*Event
	deleted       map[dirtyKey]*Event
	dirty         bool
	tagsDirty     bool
	lastScanDirty bool

	// nowStart caches the start of the event last found on air.
	nowStart time.Time

	deps      Dependencies
	opts      Options
	isPlaying func(channelUID string) bool
}

// NewTable creates an unloaded table. A table with info.ID > 0 loads its
// events from the store on first Update.
func NewTable(info TableInfo, deps Dependencies, opts Options) *Table {
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	return &Table{
		info:     info,
		lastScan: epoch,
		changed:  make(map[dirtyKey]*Event),
		deleted:  make(map[dirtyKey]*Event),
		deps:     deps,
		opts:     opts,
	}
}

// newScratchTable returns a table used to stage fetched events before a merge.
func newScratchTable(info TableInfo, opts Options) *Table {
	opts.IgnoreDatabase = true
	return NewTable(info, Dependencies{}, opts)
}

// Info returns the table metadata.
func (t *Table) Info() TableInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// ID returns the table id, <= 0 when not yet persisted.
func (t *Table) ID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info.ID
}

// ChannelUID returns the UID of the channel the table belongs to.
func (t *Table) ChannelUID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info.ChannelUID
}

// SetChannel updates the channel metadata and marks the table dirty when it
// differs.
func (t *Table) SetChannel(ch Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.info.Name == ch.Name && t.info.ClientID == ch.ClientID && t.info.IsRadio == ch.IsRadio {
		return
	}
	t.info.Name = ch.Name
	t.info.ClientID = ch.ClientID
	t.info.IsRadio = ch.IsRadio
	t.dirty = true
}

// IsLoaded reports whether Load has completed.
func (t *Table) IsLoaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// Len returns the number of live events.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// NeedsSave reports whether Persist has anything to write.
func (t *Table) NeedsSave() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.needsSaveLocked()
}

func (t *Table) needsSaveLocked() bool {
	return t.dirty || len(t.changed) > 0 || len(t.deleted) > 0
}

func (t *Table) playing() bool {
	if t.isPlaying == nil {
		return false
	}
	return t.isPlaying(t.ChannelUID())
}

// search returns the index of the first event starting at or after start.
func (t *Table) search(start time.Time) int {
	return sort.Search(len(t.events), func(i int) bool {
		return !t.events[i].Start.Before(start)
	})
}

func (t *Table) indexOf(start time.Time) (int, bool) {
	i := t.search(start)
	return i, i < len(t.events) && t.events[i].Start.Equal(start)
}

func (t *Table) indexOfBroadcastID(id int64) int {
	if id == InvalidBroadcastID {
		return -1
	}
	for i, ev := range t.events {
		if ev.BroadcastID == id {
			return i
		}
	}
	return -1
}

func (t *Table) insertAt(i int, ev *Event) {
	t.events = append(t.events, nil)
	copy(t.events[i+1:], t.events[i:])
	t.events[i] = ev
}

// removeAt detaches and drops the event at i. When markForPersist is set it
// moves into the deleted set.
func (t *Table) removeAt(i int, markForPersist bool) *Event {
	ev := t.events[i]
	if markForPersist {
		k := keyOf(ev)
		delete(t.changed, k)
		t.deleted[k] = ev
	}
	if !t.nowStart.IsZero() && t.nowStart.Equal(ev.Start) {
		t.nowStart = time.Time{}
	}
	ev.detach()
	t.events = append(t.events[:i], t.events[i+1:]...)
	return ev
}

// crossRefs carries resolved annotations from outside the lock to apply.
type crossRefs struct {
	timer     *Timer
	recording *Recording
}

func (t *Table) resolve(ev *Event) crossRefs {
	r := t.deps.Resolver
	if r == nil || ev == nil {
		return crossRefs{}
	}
	lookup := ev.clone()
	lookup.ChannelUID = t.ChannelUID()
	return crossRefs{timer: r.FindTimerFor(lookup), recording: r.FindRecordingFor(lookup)}
}

// apply is the upsert shared by every update source. The caller holds t.mu.
func (t *Table) apply(incoming *Event, refs crossRefs, source UpdateSource, markForPersist bool) (*Event, bool) {
	if incoming == nil || !incoming.Valid() {
		return nil, false
	}

	i, found := t.indexOf(incoming.Start)
	var ev *Event
	switch source {
	case SourceLoad:
		ev = incoming.clone()
		if found {
			t.events[i].detach()
			t.events[i] = ev
		} else {
			t.insertAt(i, ev)
		}
	default:
		if found {
			ev = t.events[i]
		} else {
			ev = &Event{Start: incoming.Start, BroadcastID: incoming.BroadcastID}
			t.insertAt(i, ev)
		}
		ev.Update(incoming, !found)
	}

	ev.TableID = t.info.ID
	ev.ChannelUID = t.info.ChannelUID
	ev.timer = refs.timer
	ev.recording = refs.recording

	if markForPersist {
		t.changed[keyOf(ev)] = ev
		t.tagsDirty = true
	}
	return ev, true
}

// AddEntry inserts or replaces the event at ev.Start with a fresh copy and
// resolves its cross-references.
func (t *Table) AddEntry(ev *Event) bool {
	refs := t.resolve(ev)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.apply(ev, refs, SourceLoad, false)
	return ok
}

// UpdateEntry upserts one event by start time. With markForPersist the event
// is queued for the next Persist, replacing any pending entry with the same
// broadcast id and start.
func (t *Table) UpdateEntry(ev *Event, markForPersist bool) bool {
	refs := t.resolve(ev)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.apply(ev, refs, SourceMerge, markForPersist)
	return ok
}

// UpdateEntryState applies a push notification. Created and updated events
// are upserted. A deleted event is looked up by broadcast id and only removed
// once it has aged past the retention horizon; until then the notification is
// accepted but has no effect. It returns false when the event is unknown or
// invalid.
func (t *Table) UpdateEntryState(ev *Event, state EventState, markForPersist bool) bool {
	if ev == nil {
		return false
	}

	var applied *Event
	switch state {
	case EventCreated, EventUpdated:
		refs := t.resolve(ev)
		t.mu.Lock()
		got, ok := t.apply(ev, refs, SourcePush, markForPersist)
		if !ok {
			t.mu.Unlock()
			return false
		}
		applied = got.clone()
		t.mu.Unlock()

	case EventDeleted:
		now := t.opts.now()
		t.mu.Lock()
		i := t.indexOfBroadcastID(ev.BroadcastID)
		if i < 0 {
			t.mu.Unlock()
			return false
		}
		if !t.events[i].End.Before(t.opts.retentionHorizon(now)) {
			logging.Debug().
				Str("channel_uid", t.info.ChannelUID).
				Int64("broadcast_id", ev.BroadcastID).
				Msg("Deferring removal of deleted event until it ages out")
			t.mu.Unlock()
			return true
		}
		applied = t.removeAt(i, markForPersist).clone()
		t.mu.Unlock()

	default:
		return false
	}

	t.deps.Observer.EventChanged(t.ChannelUID(), *applied, state)
	return true
}

// Cleanup removes every event that ended before horizon.
func (t *Table) Cleanup(horizon time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cleanupLocked(horizon)
}

func (t *Table) cleanupLocked(horizon time.Time) int {
	kept := t.events[:0]
	removed := 0
	for _, ev := range t.events {
		if ev.End.Before(horizon) {
			if !t.nowStart.IsZero() && t.nowStart.Equal(ev.Start) {
				t.nowStart = time.Time{}
			}
			ev.detach()
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	for i := len(kept); i < len(t.events); i++ {
		t.events[i] = nil
	}
	t.events = kept
	if removed > 0 {
		metrics.EPGEventsCleaned.Add(float64(removed))
	}
	return removed
}

// Load reads the stored events of the table once. It reports whether events
// were loaded; a store failure is logged and reported as false so the caller
// continues with an empty table and a later call retries. Events already
// present in the table are kept.
func (t *Table) Load(ctx context.Context) bool {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	t.mu.Lock()
	if t.loaded {
		t.mu.Unlock()
		return true
	}
	id := t.info.ID
	uid := t.info.ChannelUID
	if t.opts.IgnoreDatabase || id <= 0 {
		t.loaded = true
		t.mu.Unlock()
		return false
	}
	store := t.deps.Store
	t.mu.Unlock()

	if store == nil {
		logging.Warn().Str("channel_uid", uid).Msg("Cannot load EPG table: no store")
		return false
	}

	events, lastScan, err := store.LoadTable(ctx, id)
	if err != nil {
		logging.Warn().Err(err).Int64("table_id", id).Str("channel_uid", uid).Msg("Failed to load EPG table")
		return false
	}

	refs := make([]crossRefs, len(events))
	for i, ev := range events {
		refs[i] = t.resolve(ev)
	}

	t.mu.Lock()
	loaded := 0
	for i, ev := range events {
		if _, present := t.indexOf(ev.Start); present {
			continue
		}
		if _, ok := t.apply(ev, refs[i], SourceLoad, false); ok {
			loaded++
		}
	}
	if !t.lastScanLoaded {
		if !lastScan.IsZero() {
			t.lastScan = lastScan.UTC()
		}
		t.lastScanLoaded = true
	}
	t.loaded = true
	t.mu.Unlock()

	logging.Debug().Int64("table_id", id).Str("channel_uid", uid).Int("events", loaded).Msg("EPG table loaded")
	return loaded > 0
}

// LastScanTime returns the time of the last successful update. It is read
// from the store on first use and defaults to the Unix epoch.
func (t *Table) LastScanTime(ctx context.Context) time.Time {
	t.mu.Lock()
	if t.lastScanLoaded || t.opts.IgnoreDatabase || t.info.ID <= 0 || t.deps.Store == nil {
		ts := t.lastScan
		t.mu.Unlock()
		return ts
	}
	id := t.info.ID
	store := t.deps.Store
	t.mu.Unlock()

	ts, ok, err := store.GetLastScanTime(ctx, id)
	if err != nil {
		logging.Warn().Err(err).Int64("table_id", id).Msg("Failed to read last scan time")
		ok = false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.lastScanLoaded {
		if ok && !ts.IsZero() {
			t.lastScan = ts.UTC()
		}
		// A failed read is retried on the next call.
		t.lastScanLoaded = err == nil
	}
	return t.lastScan
}

func (t *Table) updateDue(ctx context.Context, interval time.Duration) bool {
	lastScan := t.LastScanTime(ctx)

	t.mu.Lock()
	if len(t.events) == 0 && !t.info.IsRadio && t.opts.EmptyTagsInterval > 0 {
		interval = t.opts.EmptyTagsInterval
	}
	t.mu.Unlock()

	return t.opts.now().After(lastScan.Add(interval))
}

// Update refreshes the table from the backend for [start, end). The store is
// loaded and expired events are cleaned up first. The fetch only runs when
// interval has passed since the last scan, or when force is set; interval 0
// uses the configured update interval. A not-due update returns nil. A failed
// fetch leaves the table as it was after load and cleanup.
func (t *Table) Update(ctx context.Context, start, end time.Time, interval time.Duration, force bool) error {
	began := time.Now()

	if !t.IsLoaded() {
		t.Load(ctx)
	}
	if t.IsLoaded() {
		t.Cleanup(t.opts.retentionHorizon(t.opts.now()))
	}

	if interval <= 0 {
		interval = t.opts.UpdateInterval
	}
	if !force && !t.updateDue(ctx, interval) {
		metrics.RecordUpdate("not_due", 0)
		return nil
	}

	info := t.Info()
	if t.deps.Backend == nil {
		metrics.RecordUpdate("fetch_error", time.Since(began))
		return ErrNoBackend
	}

	fetched, err := t.deps.Backend.FetchEvents(ctx, info.Channel(), start, end)
	if err != nil {
		metrics.RecordUpdate("fetch_error", time.Since(began))
		return fmt.Errorf("failed to fetch events for channel %s: %w", info.ChannelUID, err)
	}

	scratch := newScratchTable(info, t.opts)
	for _, ev := range fetched {
		scratch.AddEntry(ev)
	}
	t.UpdateEntries(scratch, !t.opts.IgnoreDatabase)

	metrics.RecordUpdate("success", time.Since(began))
	logging.Debug().
		Str("channel_uid", info.ChannelUID).
		Int("fetched", len(fetched)).
		Dur("duration", time.Since(began)).
		Msg("EPG table updated")

	if t.playing() {
		t.deps.Observer.PlayingEventChanged(info.ChannelUID)
	}
	return nil
}

// ResolveCrossReferences re-resolves the timer and recording of every event.
// Results are only applied to events still present with the same start and
// broadcast id.
func (t *Table) ResolveCrossReferences() {
	events := t.Get()
	refs := make([]crossRefs, len(events))
	for i, ev := range events {
		refs[i] = t.resolve(ev)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i, ev := range events {
		j, found := t.indexOf(ev.Start)
		if !found || t.events[j].BroadcastID != ev.BroadcastID {
			continue
		}
		t.events[j].timer = refs[i].timer
		t.events[j].recording = refs[i].recording
	}
}

// Clear detaches and drops every event without touching the store.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ev := range t.events {
		ev.detach()
	}
	t.events = nil
	t.nowStart = time.Time{}
}
