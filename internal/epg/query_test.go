// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"testing"
)

func twoHourTable(clock *testClock) *Table {
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{}, testOptions(clock))
	tbl.AddEntry(ev(1, 0, 60, "First"))
	tbl.AddEntry(ev(2, 60, 120, "Second"))
	return tbl
}

func TestGetTagNow(t *testing.T) {
	tests := []struct {
		name   string
		minute int
		wantID int64 // 0 means nil
	}{
		{"inside first", 30, 1},
		{"at boundary", 60, 2},
		{"inside second", 90, 2},
		{"within gap tolerance", 123, 2},
		{"exactly at tolerance", 125, 2},
		{"past gap tolerance", 150, 0},
		{"before any event", -10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newTestClock(at(tt.minute))
			tbl := twoHourTable(clock)

			got := tbl.GetTagNow(true)
			switch {
			case tt.wantID == 0 && got != nil:
				t.Errorf("GetTagNow() = %d, want nil", got.BroadcastID)
			case tt.wantID != 0 && got == nil:
				t.Errorf("GetTagNow() = nil, want %d", tt.wantID)
			case tt.wantID != 0 && got.BroadcastID != tt.wantID:
				t.Errorf("GetTagNow() = %d, want %d", got.BroadcastID, tt.wantID)
			}
		})
	}
}

func TestGetTagNow_CachedFastPath(t *testing.T) {
	clock := newTestClock(at(30))
	tbl := twoHourTable(clock)

	if got := tbl.GetTagNow(false); got != nil {
		t.Errorf("GetTagNow(false) before any lookup = %+v, want nil", got)
	}
	if got := tbl.GetTagNow(true); got == nil || got.BroadcastID != 1 {
		t.Fatalf("GetTagNow(true) = %+v, want 1", got)
	}
	if got := tbl.GetTagNow(false); got == nil || got.BroadcastID != 1 {
		t.Errorf("GetTagNow(false) after lookup = %+v, want cached 1", got)
	}

	clock.Set(at(90))
	if got := tbl.GetTagNow(false); got != nil {
		t.Errorf("GetTagNow(false) with stale cache = %+v, want nil", got)
	}
	if got := tbl.GetTagNow(true); got == nil || got.BroadcastID != 2 {
		t.Errorf("GetTagNow(true) = %+v, want 2", got)
	}
}

func TestGetTagNow_ReturnsCopy(t *testing.T) {
	clock := newTestClock(at(30))
	tbl := twoHourTable(clock)

	got := tbl.GetTagNow(true)
	got.Title = "mutated"
	if again := tbl.GetTagNow(true); again.Title != "First" {
		t.Errorf("table mutated through returned event: %q", again.Title)
	}
}

func TestGetTagNext(t *testing.T) {
	tests := []struct {
		name   string
		minute int
		wantID int64
	}{
		{"successor of now", 30, 2},
		{"last event has no successor", 90, 0},
		{"first upcoming when nothing on air", -30, 1},
		{"nothing after the end", 200, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newTestClock(at(tt.minute))
			tbl := twoHourTable(clock)

			got := tbl.GetTagNext()
			if tt.wantID == 0 {
				if got != nil {
					t.Errorf("GetTagNext() = %d, want nil", got.BroadcastID)
				}
				return
			}
			if got == nil || got.BroadcastID != tt.wantID {
				t.Errorf("GetTagNext() = %+v, want %d", got, tt.wantID)
			}
		})
	}
}

func TestGetTagByBroadcastID(t *testing.T) {
	clock := newTestClock(at(0))
	tbl := twoHourTable(clock)
	tbl.AddEntry(&Event{BroadcastID: InvalidBroadcastID, Start: at(120), End: at(130)})

	if got := tbl.GetTagByBroadcastID(2); got == nil || got.Title != "Second" {
		t.Errorf("GetTagByBroadcastID(2) = %+v", got)
	}
	if got := tbl.GetTagByBroadcastID(42); got != nil {
		t.Errorf("GetTagByBroadcastID(42) = %+v, want nil", got)
	}
	if got := tbl.GetTagByBroadcastID(InvalidBroadcastID); got != nil {
		t.Errorf("GetTagByBroadcastID(invalid) = %+v, want nil", got)
	}
}

func TestGetTagBetween(t *testing.T) {
	clock := newTestClock(at(0))
	tbl := twoHourTable(clock)

	if got := tbl.GetTagBetween(at(0), at(60)); got == nil || got.BroadcastID != 1 {
		t.Errorf("GetTagBetween(0, 60) = %+v, want 1", got)
	}
	if got := tbl.GetTagBetween(at(10), at(130)); got == nil || got.BroadcastID != 2 {
		t.Errorf("GetTagBetween(10, 130) = %+v, want 2", got)
	}
	if got := tbl.GetTagBetween(at(0), at(50)); got != nil {
		t.Errorf("GetTagBetween(0, 50) = %+v, want nil", got)
	}
}

func TestGetTagsBetween(t *testing.T) {
	clock := newTestClock(at(0))
	tbl := twoHourTable(clock)
	tbl.AddEntry(ev(3, 120, 180, "Third"))

	got := tbl.GetTagsBetween(at(30), at(120))
	if len(got) != 2 || got[0].BroadcastID != 2 || got[1].BroadcastID != 3 {
		t.Errorf("GetTagsBetween(30, 120) = %v, want [2 3]", ids(got))
	}
	if got := tbl.GetTagsBetween(at(0), at(10)); len(got) != 1 {
		t.Errorf("GetTagsBetween(0, 10) = %v, want [1]", ids(got))
	}
	if got := tbl.GetTagsBetween(at(200), at(300)); len(got) != 0 {
		t.Errorf("GetTagsBetween(200, 300) = %v, want none", ids(got))
	}
}

func TestGetFiltered(t *testing.T) {
	clock := newTestClock(at(30))
	tbl := twoHourTable(clock)

	got := tbl.GetFiltered(func(e *Event) bool { return e.Title == "Second" })
	if len(got) != 1 || got[0].BroadcastID != 2 {
		t.Errorf("GetFiltered = %v, want [2]", ids(got))
	}

	clock.Set(at(121))
	called := false
	if got := tbl.GetFiltered(func(*Event) bool { called = true; return true }); got != nil {
		t.Errorf("GetFiltered on expired table = %v, want nil", ids(got))
	}
	if called {
		t.Error("filter should not run when the table has no valid entries")
	}
}

func TestHasValidEntries(t *testing.T) {
	clock := newTestClock(at(30))
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{}, testOptions(clock))
	if tbl.HasValidEntries() {
		t.Error("empty table should have no valid entries")
	}
	tbl.AddEntry(ev(1, 0, 60, ""))
	if !tbl.HasValidEntries() {
		t.Error("table with a running event should have valid entries")
	}
	clock.Set(at(60))
	if tbl.HasValidEntries() {
		t.Error("table whose last event ended should have no valid entries")
	}
}

func TestCheckPlayingEvent(t *testing.T) {
	clock := newTestClock(at(30))
	obs := &recordingObserver{}
	tbl := NewTable(TableInfo{ChannelUID: "ch1"}, Dependencies{Observer: obs}, testOptions(clock))
	tbl.AddEntry(ev(1, 0, 60, "First"))
	tbl.AddEntry(ev(2, 60, 120, "Second"))

	if !tbl.CheckPlayingEvent() {
		t.Error("first check should report a change")
	}
	if tbl.CheckPlayingEvent() {
		t.Error("second check at the same time should report no change")
	}

	clock.Set(at(90))
	if !tbl.CheckPlayingEvent() {
		t.Error("check after the boundary should report a change")
	}

	clock.Set(at(200))
	if !tbl.CheckPlayingEvent() {
		t.Error("check after everything ended should report removal")
	}
	if tbl.CheckPlayingEvent() {
		t.Error("nothing playing twice should report no change")
	}

	if _, _, playing := obs.counts(); playing != 3 {
		t.Errorf("PlayingEventChanged calls = %d, want 3", playing)
	}
}

func ids(events []*Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.BroadcastID
	}
	return out
}
