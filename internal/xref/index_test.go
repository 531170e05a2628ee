// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package xref

import (
	"testing"
	"time"

	"github.com/tomtom215/tvguide/internal/epg"
)

var base = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func TestFindTimerFor(t *testing.T) {
	x := NewIndex()
	x.PutTimer(epg.Timer{ID: "by-id", ChannelUID: "a", BroadcastID: 7, Start: at(-2), End: at(62)})
	x.PutTimer(epg.Timer{ID: "by-start", ChannelUID: "a", Start: at(120), End: at(180)})
	x.PutTimer(epg.Timer{ID: "other-channel", ChannelUID: "b", BroadcastID: 9, Start: at(0), End: at(60)})

	tests := []struct {
		name string
		ev   *epg.Event
		want string
	}{
		{"broadcast id", &epg.Event{ChannelUID: "a", BroadcastID: 7, Start: at(0)}, "by-id"},
		{"start time", &epg.Event{ChannelUID: "a", BroadcastID: 8, Start: at(120)}, "by-start"},
		{"start without id", &epg.Event{ChannelUID: "a", Start: at(120)}, "by-start"},
		{"wrong channel", &epg.Event{ChannelUID: "a", BroadcastID: 9, Start: at(0)}, ""},
		{"no match", &epg.Event{ChannelUID: "a", BroadcastID: 1, Start: at(30)}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.FindTimerFor(tt.ev)
			if tt.want == "" {
				if got != nil {
					t.Errorf("FindTimerFor() = %s, want nil", got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.want {
				t.Errorf("FindTimerFor() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestFindTimerFor_PrefersBroadcastID(t *testing.T) {
	x := NewIndex()
	x.PutTimer(epg.Timer{ID: "a-start", ChannelUID: "a", Start: at(0), End: at(60)})
	x.PutTimer(epg.Timer{ID: "z-id", ChannelUID: "a", BroadcastID: 5, Start: at(-5), End: at(65)})

	got := x.FindTimerFor(&epg.Event{ChannelUID: "a", BroadcastID: 5, Start: at(0)})
	if got == nil || got.ID != "z-id" {
		t.Errorf("FindTimerFor() = %v, want z-id", got)
	}
}

func TestPutTimer_Move(t *testing.T) {
	x := NewIndex()
	if got := x.PutTimer(epg.Timer{ID: "t", ChannelUID: "a", BroadcastID: 1, Start: at(0), End: at(60)}); len(got) != 1 || got[0] != "a" {
		t.Errorf("PutTimer() affected = %v, want [a]", got)
	}
	got := x.PutTimer(epg.Timer{ID: "t", ChannelUID: "b", BroadcastID: 1, Start: at(0), End: at(60)})
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("PutTimer() affected = %v, want [b a]", got)
	}
	if x.FindTimerFor(&epg.Event{ChannelUID: "a", BroadcastID: 1}) != nil {
		t.Error("moved timer still found on the old channel")
	}
	if x.FindTimerFor(&epg.Event{ChannelUID: "b", BroadcastID: 1}) == nil {
		t.Error("moved timer not found on the new channel")
	}
	if n := len(x.Timers()); n != 1 {
		t.Errorf("Timers() = %d, want 1", n)
	}
}

func TestRemoveTimer(t *testing.T) {
	x := NewIndex()
	x.PutTimer(epg.Timer{ID: "t", ChannelUID: "a", BroadcastID: 1, Start: at(0), End: at(60)})

	uid, ok := x.RemoveTimer("t")
	if !ok || uid != "a" {
		t.Errorf("RemoveTimer() = %q, %v", uid, ok)
	}
	if _, ok := x.RemoveTimer("t"); ok {
		t.Error("second RemoveTimer() should fail")
	}
	if x.FindTimerFor(&epg.Event{ChannelUID: "a", BroadcastID: 1}) != nil {
		t.Error("removed timer still found")
	}
}

func TestTimers_Sorted(t *testing.T) {
	x := NewIndex()
	x.PutTimer(epg.Timer{ID: "late", ChannelUID: "a", Start: at(60), End: at(90)})
	x.PutTimer(epg.Timer{ID: "b", ChannelUID: "a", Start: at(0), End: at(30)})
	x.PutTimer(epg.Timer{ID: "a", ChannelUID: "b", Start: at(0), End: at(30)})

	got := x.Timers()
	want := []string{"a", "b", "late"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Timers()[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRecordings(t *testing.T) {
	x := NewIndex()
	x.PutRecording(epg.Recording{ID: "r1", ChannelUID: "a", BroadcastID: 3, Start: at(0), Path: "/rec/1.ts"})
	x.PutRecording(epg.Recording{ID: "r2", ChannelUID: "a", Start: at(60)})

	if got := x.FindRecordingFor(&epg.Event{ChannelUID: "a", BroadcastID: 3, Start: at(0)}); got == nil || got.Path != "/rec/1.ts" {
		t.Errorf("FindRecordingFor(id) = %v", got)
	}
	if got := x.FindRecordingFor(&epg.Event{ChannelUID: "a", Start: at(60)}); got == nil || got.ID != "r2" {
		t.Errorf("FindRecordingFor(start) = %v", got)
	}

	if uid, ok := x.RemoveRecording("r1"); !ok || uid != "a" {
		t.Errorf("RemoveRecording() = %q, %v", uid, ok)
	}
	if len(x.Recordings()) != 1 {
		t.Errorf("Recordings() = %d, want 1", len(x.Recordings()))
	}
}

func TestIndexFeedsTable(t *testing.T) {
	x := NewIndex()
	tbl := epg.NewTable(epg.TableInfo{ChannelUID: "a"}, epg.Dependencies{Resolver: x}, epg.DefaultOptions())
	tbl.UpdateEntry(&epg.Event{BroadcastID: 4, Start: at(0), End: at(60)}, false)

	if tbl.GetTagByBroadcastID(4).HasTimer() {
		t.Fatal("no timer expected yet")
	}
	x.PutTimer(epg.Timer{ID: "t", ChannelUID: "a", BroadcastID: 4, Start: at(0), End: at(60)})
	tbl.ResolveCrossReferences()

	got := tbl.GetTagByBroadcastID(4)
	if !got.HasTimer() || got.Timer().ID != "t" {
		t.Errorf("event timer = %v, want t", got.Timer())
	}
}
