// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// at returns base plus the given minutes.
func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func ev(id int64, startMin, endMin int, title string) *Event {
	return &Event{BroadcastID: id, Start: at(startMin), End: at(endMin), Title: title}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock { return &testClock{now: now} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testOptions(clock *testClock) Options {
	opts := DefaultOptions()
	opts.Clock = clock.Now
	return opts
}

// memStore is an in-memory Store that records every call.
type memStore struct {
	mu sync.Mutex

	nextID   int64
	tables   map[int64]TableInfo
	events   map[int64]map[int64]*Event // table -> start unix nano -> event
	lastScan map[int64]time.Time

	upserts      []*Event
	deletes      []int64
	deletesAt    []time.Time
	tableUpserts int
	commits      int

	failLoad   error
	failUpsert error
	failCommit error
}

func newMemStore() *memStore {
	return &memStore{
		tables:   make(map[int64]TableInfo),
		events:   make(map[int64]map[int64]*Event),
		lastScan: make(map[int64]time.Time),
	}
}

func (s *memStore) LoadTable(_ context.Context, id int64) ([]*Event, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad != nil {
		return nil, time.Time{}, s.failLoad
	}
	var out []*Event
	for _, e := range s.events[id] {
		out = append(out, e.clone())
	}
	return out, s.lastScan[id], nil
}

func (s *memStore) ListTables(context.Context) ([]TableInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TableInfo
	for _, info := range s.tables {
		out = append(out, info)
	}
	return out, nil
}

func (s *memStore) UpsertTable(_ context.Context, info TableInfo) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableUpserts++
	if info.ID <= 0 {
		s.nextID++
		info.ID = s.nextID
	}
	s.tables[info.ID] = info
	return info.ID, nil
}

func (s *memStore) DeleteTable(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, id)
	delete(s.events, id)
	delete(s.lastScan, id)
	return nil
}

func (s *memStore) UpsertEvent(_ context.Context, tableID int64, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return s.failUpsert
	}
	s.upserts = append(s.upserts, e.clone())
	if s.events[tableID] == nil {
		s.events[tableID] = make(map[int64]*Event)
	}
	s.events[tableID][e.Start.UnixNano()] = e.clone()
	return nil
}

func (s *memStore) DeleteEvent(_ context.Context, tableID, broadcastID int64, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, broadcastID)
	k := start.UnixNano()
	if e, ok := s.events[tableID][k]; ok && e.BroadcastID == broadcastID {
		delete(s.events[tableID], k)
	}
	return nil
}

func (s *memStore) DeleteEventAt(_ context.Context, tableID int64, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletesAt = append(s.deletesAt, start)
	delete(s.events[tableID], start.UnixNano())
	return nil
}

func (s *memStore) DeleteEventsBefore(_ context.Context, horizon time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evs := range s.events {
		for k, e := range evs {
			if e.End.Before(horizon) {
				delete(evs, k)
			}
		}
	}
	return nil
}

func (s *memStore) GetLastScanTime(_ context.Context, id int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.lastScan[id]
	return ts, ok, nil
}

func (s *memStore) SetLastScanTime(_ context.Context, id int64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScan[id] = ts
	return nil
}

func (s *memStore) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCommit != nil {
		return s.failCommit
	}
	s.commits++
	return nil
}

func (s *memStore) storedEvents(tableID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[tableID])
}

// stored returns the committed events of a table in start order.
func (s *memStore) stored(tableID int64) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, 0, len(s.events[tableID]))
	for _, e := range s.events[tableID] {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// fakeBackend returns a fixed batch per channel.
type fakeBackend struct {
	mu     sync.Mutex
	events map[string][]*Event
	err    error
	calls  int
}

func (b *fakeBackend) FetchEvents(_ context.Context, ch Channel, _, _ time.Time) ([]*Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	var out []*Event
	for _, e := range b.events[ch.UID] {
		out = append(out, e.clone())
	}
	return out, nil
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

var errBackendDown = errors.New("backend down")

// fakeResolver matches timers by broadcast id.
type fakeResolver struct {
	mu     sync.Mutex
	timers map[int64]*Timer
	calls  int
}

func (r *fakeResolver) FindTimerFor(e *Event) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.timers[e.BroadcastID]
}

func (r *fakeResolver) FindRecordingFor(*Event) *Recording { return nil }

// recordingObserver counts notifications.
type recordingObserver struct {
	mu      sync.Mutex
	tables  int
	events  []EventState
	playing int
}

func (o *recordingObserver) TableChanged(string) {
	o.mu.Lock()
	o.tables++
	o.mu.Unlock()
}

func (o *recordingObserver) EventChanged(_ string, _ Event, state EventState) {
	o.mu.Lock()
	o.events = append(o.events, state)
	o.mu.Unlock()
}

func (o *recordingObserver) PlayingEventChanged(string) {
	o.mu.Lock()
	o.playing++
	o.mu.Unlock()
}

func (o *recordingObserver) counts() (tables, events, playing int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tables, len(o.events), o.playing
}

// pendingByID returns the entry of a dirty set carrying the broadcast id.
func pendingByID(set map[dirtyKey]*Event, id int64) (*Event, bool) {
	for k, e := range set {
		if k.broadcastID == id {
			return e, true
		}
	}
	return nil, false
}

func scratchOf(t *testing.T, events ...*Event) *Table {
	t.Helper()
	s := newScratchTable(TableInfo{ChannelUID: "scratch"}, DefaultOptions())
	for _, e := range events {
		if !s.AddEntry(e) {
			t.Fatalf("AddEntry(%v) rejected", e)
		}
	}
	return s
}

func assertNoOverlap(t *testing.T, tbl *Table) {
	t.Helper()
	events := tbl.Get()
	for i := 1; i < len(events); i++ {
		if events[i-1].End.After(events[i].Start) {
			t.Errorf("events %d and %d overlap: [%v, %v) and [%v, %v)",
				i-1, i, events[i-1].Start, events[i-1].End, events[i].Start, events[i].End)
		}
		if !events[i-1].Start.Before(events[i].Start) {
			t.Errorf("events %d and %d out of order", i-1, i)
		}
	}
	for i, e := range events {
		if !e.Start.Before(e.End) {
			t.Errorf("event %d is degenerate: [%v, %v)", i, e.Start, e.End)
		}
	}
}
