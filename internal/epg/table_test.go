// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAddEntry_ReplacesSameStart(t *testing.T) {
	tbl := scratchOf(t, ev(1, 0, 60, "A"))
	tbl.AddEntry(ev(2, 0, 30, "B"))

	if got := tbl.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	got := tbl.GetTagByStart(at(0))
	if got.BroadcastID != 2 || got.Title != "B" {
		t.Errorf("event = %+v, want replacement B", got)
	}
}

func TestAddEntry_KeepsOrder(t *testing.T) {
	tbl := scratchOf(t, ev(3, 120, 180, ""), ev(1, 0, 60, ""), ev(2, 60, 120, ""))
	got := ids(tbl.Get())
	want := []int64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestAddEntry_RejectsInvalid(t *testing.T) {
	tbl := NewTable(TableInfo{}, Dependencies{}, DefaultOptions())
	if tbl.AddEntry(nil) {
		t.Error("AddEntry(nil) should fail")
	}
	if tbl.AddEntry(ev(1, 60, 60, "")) {
		t.Error("AddEntry with start == end should fail")
	}
	if tbl.AddEntry(ev(1, 60, 30, "")) {
		t.Error("AddEntry with start > end should fail")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tbl.Len())
	}
}

func TestUpdateEntry_ResolvesCrossReferences(t *testing.T) {
	timer := &Timer{ID: "t1", ChannelUID: "ch1", BroadcastID: 7}
	resolver := &fakeResolver{timers: map[int64]*Timer{7: timer}}
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Resolver: resolver}, DefaultOptions())

	tbl.UpdateEntry(ev(7, 0, 60, "Film"), false)

	got := tbl.GetTagByBroadcastID(7)
	if got.Timer() != timer {
		t.Errorf("Timer() = %v, want %v", got.Timer(), timer)
	}
	if got.ChannelUID != "ch1" {
		t.Errorf("ChannelUID = %q, want ch1", got.ChannelUID)
	}
}

func TestUpdateEntry_LastValueWins(t *testing.T) {
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{}, DefaultOptions())

	tbl.UpdateEntry(ev(5, 0, 60, "first"), true)
	tbl.UpdateEntry(ev(5, 0, 60, "second"), true)

	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	if len(tbl.changed) != 1 {
		t.Fatalf("changed set has %d entries, want 1", len(tbl.changed))
	}
	if got, _ := pendingByID(tbl.changed, 5); got == nil || got.Title != "second" {
		t.Errorf("pending = %+v, want title second", got)
	}
}

func TestUpdateEntry_InvalidIDsDoNotCollide(t *testing.T) {
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{}, DefaultOptions())
	tbl.UpdateEntry(ev(InvalidBroadcastID, 0, 60, ""), true)
	tbl.UpdateEntry(ev(InvalidBroadcastID, 60, 120, ""), true)

	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	if len(tbl.changed) != 2 {
		t.Errorf("changed set has %d entries, want 2", len(tbl.changed))
	}
}

func TestUpdateEntryState_CreateAndUpdate(t *testing.T) {
	obs := &recordingObserver{}
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Observer: obs}, DefaultOptions())

	if !tbl.UpdateEntryState(ev(1, 0, 60, "A"), EventCreated, true) {
		t.Fatal("created should succeed")
	}
	if !tbl.UpdateEntryState(ev(1, 0, 60, "A2"), EventUpdated, true) {
		t.Fatal("updated should succeed")
	}
	if got := tbl.GetTagByBroadcastID(1).Title; got != "A2" {
		t.Errorf("Title = %q, want A2", got)
	}
	if _, events, _ := obs.counts(); events != 2 {
		t.Errorf("EventChanged calls = %d, want 2", events)
	}
	if tbl.UpdateEntryState(nil, EventCreated, true) {
		t.Error("nil event should fail")
	}
}

func TestUpdateEntryState_DeleteLinger(t *testing.T) {
	now := base.Add(100 * day)
	clock := newTestClock(now)
	opts := testOptions(clock)
	opts.PastDays = 30
	obs := &recordingObserver{}
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Observer: obs}, opts)

	upcoming := &Event{BroadcastID: 1, Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)}
	ancient := &Event{BroadcastID: 2, Start: now.Add(-40*day - time.Hour), End: now.Add(-40 * day)}
	tbl.UpdateEntry(upcoming, false)
	tbl.UpdateEntry(ancient, false)

	if !tbl.UpdateEntryState(&Event{BroadcastID: 1}, EventDeleted, true) {
		t.Error("delete inside retention should be accepted")
	}
	if tbl.GetTagByBroadcastID(1) == nil {
		t.Error("event inside retention should remain")
	}
	if _, events, _ := obs.counts(); events != 0 {
		t.Errorf("suppressed delete notified %d times, want 0", events)
	}

	if !tbl.UpdateEntryState(&Event{BroadcastID: 2}, EventDeleted, true) {
		t.Error("delete outside retention should succeed")
	}
	if tbl.GetTagByBroadcastID(2) != nil {
		t.Error("event outside retention should be removed")
	}
	if _, events, _ := obs.counts(); events != 1 {
		t.Errorf("EventChanged calls = %d, want 1", events)
	}

	tbl.mu.Lock()
	_, deleted := pendingByID(tbl.deleted, 2)
	tbl.mu.Unlock()
	if !deleted {
		t.Error("removed event should be in the deleted set")
	}
}

func TestUpdateEntryState_DeleteUnknown(t *testing.T) {
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{}, DefaultOptions())
	tbl.UpdateEntry(ev(1, 0, 60, ""), false)

	if tbl.UpdateEntryState(&Event{BroadcastID: 99}, EventDeleted, true) {
		t.Error("delete of unknown id should fail")
	}
	if tbl.UpdateEntryState(&Event{BroadcastID: InvalidBroadcastID}, EventDeleted, true) {
		t.Error("delete of the invalid id should fail")
	}
}

func TestUpdateEntryState_DeleteDetaches(t *testing.T) {
	now := base.Add(10 * day)
	clock := newTestClock(now)
	timer := &Timer{ID: "t"}
	resolver := &fakeResolver{timers: map[int64]*Timer{3: timer}}
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Resolver: resolver}, testOptions(clock))

	old := &Event{BroadcastID: 3, Start: now.Add(-3 * day), End: now.Add(-3*day + time.Hour)}
	tbl.UpdateEntry(old, true)

	tbl.mu.Lock()
	live := tbl.events[0]
	tbl.mu.Unlock()
	if live.timer == nil {
		t.Fatal("precondition: timer should be attached")
	}

	tbl.UpdateEntryState(&Event{BroadcastID: 3}, EventDeleted, true)
	if live.timer != nil {
		t.Error("timer reference should be cleared on removal")
	}
}

func TestCleanup(t *testing.T) {
	clock := newTestClock(at(0))
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{}, testOptions(clock))
	tbl.AddEntry(ev(1, -300, -200, ""))
	tbl.AddEntry(ev(2, -200, -100, ""))
	tbl.AddEntry(ev(3, -100, 100, ""))
	tbl.AddEntry(ev(4, 100, 200, ""))

	removed := tbl.Cleanup(at(-50))

	if removed != 2 {
		t.Errorf("Cleanup removed %d, want 2", removed)
	}
	got := ids(tbl.Get())
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("remaining = %v, want [3 4]", got)
	}
}

func TestCleanup_ClearsCachedNow(t *testing.T) {
	clock := newTestClock(at(30))
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{}, testOptions(clock))
	tbl.AddEntry(ev(1, 0, 60, ""))
	tbl.GetTagNow(true)

	tbl.Cleanup(at(61))

	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	if !tbl.nowStart.IsZero() {
		t.Error("cached now should be cleared when its event is removed")
	}
}

func TestLoad(t *testing.T) {
	store := newMemStore()
	id, _ := store.UpsertTable(context.Background(), TableInfo{ChannelUID: "ch1"})
	_ = store.UpsertEvent(context.Background(), id, ev(1, 0, 60, "stored"))
	_ = store.UpsertEvent(context.Background(), id, ev(2, 60, 120, "stored"))
	_ = store.SetLastScanTime(context.Background(), id, at(-5))

	tbl := NewTable(TableInfo{ID: id, ChannelUID: "ch1"}, Dependencies{Store: store}, DefaultOptions())
	tbl.AddEntry(ev(10, 0, 30, "memory"))

	if !tbl.Load(context.Background()) {
		t.Fatal("Load() = false, want true")
	}
	if got := tbl.GetTagByStart(at(0)).Title; got != "memory" {
		t.Errorf("event at 0 = %q, want the in-memory one kept", got)
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
	if got := tbl.LastScanTime(context.Background()); !got.Equal(at(-5)) {
		t.Errorf("LastScanTime = %v, want %v", got, at(-5))
	}
	if !tbl.Load(context.Background()) {
		t.Error("second Load() should report the table as loaded")
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() after second Load = %d, want 2", tbl.Len())
	}
}

func TestLoad_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.failLoad = errors.New("disk gone")
	tbl := NewTable(TableInfo{ID: 1, ChannelUID: "ch1"}, Dependencies{Store: store}, DefaultOptions())

	if tbl.Load(context.Background()) {
		t.Error("Load() = true on store failure")
	}
	if tbl.IsLoaded() {
		t.Error("table should stay unloaded so the next call retries")
	}

	store.mu.Lock()
	store.failLoad = nil
	store.mu.Unlock()
	tbl.Load(context.Background())
	if !tbl.IsLoaded() {
		t.Error("retry should load the table")
	}
}

func TestLoad_NoStore(t *testing.T) {
	tbl := NewTable(TableInfo{ID: 1, ChannelUID: "ch1"}, Dependencies{}, DefaultOptions())
	if tbl.Load(context.Background()) {
		t.Error("Load() without store = true")
	}
}

func TestLastScanTime_DefaultsToEpoch(t *testing.T) {
	tbl := NewTable(TableInfo{ID: 7}, Dependencies{Store: newMemStore()}, DefaultOptions())
	if got := tbl.LastScanTime(context.Background()); !got.Equal(time.Unix(0, 0)) {
		t.Errorf("LastScanTime = %v, want epoch", got)
	}
}

func TestUpdate_FetchesAndMerges(t *testing.T) {
	clock := newTestClock(at(30))
	backend := &fakeBackend{events: map[string][]*Event{
		"ch1": {ev(1, 0, 70, "A"), ev(2, 60, 120, "B")},
	}}
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Backend: backend}, testOptions(clock))

	if err := tbl.Update(context.Background(), at(0), at(600), time.Hour, false); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	assertNoOverlap(t, tbl)
	if !tbl.NeedsSave() {
		t.Error("merged table should need a save")
	}
	if got := tbl.LastScanTime(context.Background()); !got.Equal(at(30)) {
		t.Errorf("LastScanTime = %v, want %v", got, at(30))
	}
}

func TestUpdate_NotDue(t *testing.T) {
	clock := newTestClock(at(30))
	backend := &fakeBackend{events: map[string][]*Event{"ch1": {ev(1, 0, 60, "A")}}}
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Backend: backend}, testOptions(clock))

	if err := tbl.Update(context.Background(), at(0), at(600), time.Hour, false); err != nil {
		t.Fatalf("first Update() error = %v", err)
	}
	clock.Advance(30 * time.Minute)
	if err := tbl.Update(context.Background(), at(0), at(600), time.Hour, false); err != nil {
		t.Fatalf("second Update() error = %v", err)
	}
	if got := backend.callCount(); got != 1 {
		t.Errorf("backend calls = %d, want 1", got)
	}

	if err := tbl.Update(context.Background(), at(0), at(600), time.Hour, true); err != nil {
		t.Fatalf("forced Update() error = %v", err)
	}
	if got := backend.callCount(); got != 2 {
		t.Errorf("backend calls after force = %d, want 2", got)
	}

	clock.Advance(61 * time.Minute)
	if err := tbl.Update(context.Background(), at(0), at(600), time.Hour, false); err != nil {
		t.Fatalf("due Update() error = %v", err)
	}
	if got := backend.callCount(); got != 3 {
		t.Errorf("backend calls after interval = %d, want 3", got)
	}
}

func TestUpdate_EmptyTagsInterval(t *testing.T) {
	tests := []struct {
		name      string
		radio     bool
		wantCalls int
	}{
		{"tv channel uses the empty interval", false, 1},
		{"radio channel uses the normal interval", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newTestClock(base.Add(10 * day))
			opts := testOptions(clock)
			opts.EmptyTagsInterval = 12 * time.Hour
			backend := &fakeBackend{}
			tbl := NewTable(TableInfo{ChannelUID: "ch1", IsRadio: tt.radio}, Dependencies{Backend: backend}, opts)

			ctx := context.Background()
			_ = tbl.Update(ctx, time.Time{}, time.Time{}, time.Hour, false)
			clock.Advance(2 * time.Hour)
			_ = tbl.Update(ctx, time.Time{}, time.Time{}, time.Hour, false)

			if got := backend.callCount(); got != tt.wantCalls {
				t.Errorf("backend calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestUpdate_FetchFailureKeepsState(t *testing.T) {
	store := newMemStore()
	id, _ := store.UpsertTable(context.Background(), TableInfo{ChannelUID: "ch1"})
	_ = store.UpsertEvent(context.Background(), id, ev(1, 0, 60, "stored"))

	clock := newTestClock(at(30))
	backend := &fakeBackend{err: errBackendDown}
	tbl := NewTable(TableInfo{ID: id, ChannelUID: "ch1"}, Dependencies{Store: store, Backend: backend}, testOptions(clock))

	err := tbl.Update(context.Background(), at(0), at(600), time.Hour, true)
	if !errors.Is(err, errBackendDown) {
		t.Fatalf("Update() error = %v, want %v", err, errBackendDown)
	}
	if !tbl.IsLoaded() || tbl.Len() != 1 {
		t.Errorf("loaded=%v len=%d, want the stored event kept", tbl.IsLoaded(), tbl.Len())
	}
	if got := tbl.LastScanTime(context.Background()); !got.Equal(time.Unix(0, 0)) {
		t.Errorf("LastScanTime advanced to %v on failure", got)
	}
}

func TestUpdate_NoBackend(t *testing.T) {
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{}, DefaultOptions())
	if err := tbl.Update(context.Background(), time.Time{}, time.Time{}, 0, true); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Update() error = %v, want ErrNoBackend", err)
	}
}

func TestUpdate_CleansUpExpired(t *testing.T) {
	now := base.Add(10 * day)
	clock := newTestClock(now)
	opts := testOptions(clock)
	opts.PastDays = 1
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Backend: &fakeBackend{}}, opts)
	tbl.AddEntry(&Event{BroadcastID: 1, Start: now.Add(-3 * day), End: now.Add(-2 * day)})
	tbl.AddEntry(&Event{BroadcastID: 2, Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour)})

	_ = tbl.Update(context.Background(), now, now.Add(day), time.Hour, false)

	if tbl.GetTagByBroadcastID(1) != nil {
		t.Error("event older than the horizon should be cleaned up")
	}
	if tbl.GetTagByBroadcastID(2) == nil {
		t.Error("event inside the horizon should be kept")
	}
}

func TestUpdate_NotifiesPlayingChannel(t *testing.T) {
	obs := &recordingObserver{}
	backend := &fakeBackend{}
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Backend: backend, Observer: obs}, DefaultOptions())
	tbl.isPlaying = func(uid string) bool { return uid == "ch1" }

	_ = tbl.Update(context.Background(), time.Time{}, time.Time{}, 0, true)

	if _, _, playing := obs.counts(); playing != 1 {
		t.Errorf("PlayingEventChanged calls = %d, want 1", playing)
	}
}

func TestResolveCrossReferences(t *testing.T) {
	resolver := &fakeResolver{timers: map[int64]*Timer{}}
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Resolver: resolver}, DefaultOptions())
	tbl.UpdateEntry(ev(1, 0, 60, ""), false)
	if tbl.GetTagByBroadcastID(1).HasTimer() {
		t.Fatal("precondition: no timer")
	}

	resolver.mu.Lock()
	resolver.timers[1] = &Timer{ID: "late"}
	resolver.mu.Unlock()
	tbl.ResolveCrossReferences()

	if got := tbl.GetTagByBroadcastID(1).Timer(); got == nil || got.ID != "late" {
		t.Errorf("Timer() = %v, want late", got)
	}
}
