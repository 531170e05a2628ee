// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

// Package storetest runs the behaviour every epg.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/tvguide/internal/epg"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) epg.Store

var base = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func event(id int64, startMin, endMin int, title string) *epg.Event {
	return &epg.Event{
		BroadcastID: id,
		Start:       base.Add(time.Duration(startMin) * time.Minute),
		End:         base.Add(time.Duration(endMin) * time.Minute),
		Title:       title,
		Plot:        "plot of " + title,
		GenreType:   0x10,
		Year:        2024,
	}
}

func mustCommit(t *testing.T, s epg.Store) {
	t.Helper()
	if err := s.Commit(context.Background()); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func newTable(t *testing.T, s epg.Store, uid string) int64 {
	t.Helper()
	id, err := s.UpsertTable(context.Background(), epg.TableInfo{Name: uid, ChannelUID: uid, ScraperName: "client"})
	if err != nil {
		t.Fatalf("UpsertTable() error = %v", err)
	}
	if id <= 0 {
		t.Fatalf("UpsertTable() id = %d, want > 0", id)
	}
	return id
}

func load(t *testing.T, s epg.Store, id int64) []*epg.Event {
	t.Helper()
	events, _, err := s.LoadTable(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadTable(%d) error = %v", id, err)
	}
	return events
}

// Run exercises the store contract.
func Run(t *testing.T, factory Factory) {
	t.Run("UpsertTableAssignsAndKeepsIDs", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		a := newTable(t, s, "a")
		b := newTable(t, s, "b")
		if a == b {
			t.Fatalf("ids not unique: %d", a)
		}
		got, err := s.UpsertTable(ctx, epg.TableInfo{ID: a, Name: "A renamed", ChannelUID: "a", IsRadio: true})
		if err != nil || got != a {
			t.Fatalf("UpsertTable(existing) = %d, %v; want %d", got, err, a)
		}

		infos, err := s.ListTables(ctx)
		if err != nil {
			t.Fatalf("ListTables() error = %v", err)
		}
		if len(infos) != 2 {
			t.Fatalf("ListTables() = %d tables, want 2", len(infos))
		}
		for _, info := range infos {
			if info.ID == a && (info.Name != "A renamed" || !info.IsRadio) {
				t.Errorf("table a = %+v, want updated metadata", info)
			}
		}
	})

	t.Run("EventsAreQueuedUntilCommit", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		id := newTable(t, s, "ch")

		if err := s.UpsertEvent(ctx, id, event(1, 0, 60, "News")); err != nil {
			t.Fatalf("UpsertEvent() error = %v", err)
		}
		if got := load(t, s, id); len(got) != 0 {
			t.Errorf("uncommitted events visible: %d", len(got))
		}
		mustCommit(t, s)
		if got := load(t, s, id); len(got) != 1 {
			t.Errorf("committed events = %d, want 1", len(got))
		}
	})

	t.Run("LoadReturnsEventsInStartOrder", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		id := newTable(t, s, "ch")
		other := newTable(t, s, "other")

		for _, e := range []*epg.Event{event(3, 120, 180, "C"), event(1, 0, 60, "A"), event(2, 60, 120, "B")} {
			if err := s.UpsertEvent(ctx, id, e); err != nil {
				t.Fatal(err)
			}
		}
		if err := s.UpsertEvent(ctx, other, event(9, 0, 60, "elsewhere")); err != nil {
			t.Fatal(err)
		}
		mustCommit(t, s)

		got := load(t, s, id)
		if len(got) != 3 {
			t.Fatalf("LoadTable() = %d events, want 3", len(got))
		}
		for i, want := range []int64{1, 2, 3} {
			if got[i].BroadcastID != want {
				t.Errorf("event %d id = %d, want %d", i, got[i].BroadcastID, want)
			}
		}
		if got[0].Title != "A" || got[0].Plot != "plot of A" || got[0].Year != 2024 {
			t.Errorf("payload not preserved: %+v", got[0])
		}
		if !got[0].Start.Equal(base) || !got[0].End.Equal(base.Add(time.Hour)) {
			t.Errorf("times not preserved: [%v, %v)", got[0].Start, got[0].End)
		}
	})

	t.Run("UpsertReplacesSameStart", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		id := newTable(t, s, "ch")

		_ = s.UpsertEvent(ctx, id, event(1, 0, 60, "old"))
		mustCommit(t, s)
		_ = s.UpsertEvent(ctx, id, event(2, 0, 45, "new"))
		mustCommit(t, s)

		got := load(t, s, id)
		if len(got) != 1 || got[0].BroadcastID != 2 || got[0].Title != "new" {
			t.Fatalf("LoadTable() = %+v, want only the replacement", got)
		}

		// The replaced broadcast id no longer addresses anything.
		_ = s.DeleteEvent(ctx, id, 1, base)
		mustCommit(t, s)
		if got := load(t, s, id); len(got) != 1 {
			t.Errorf("delete of replaced id removed %d events", 1-len(got))
		}
	})

	t.Run("DeleteEventByBroadcastIDAndStart", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		id := newTable(t, s, "ch")
		other := newTable(t, s, "other")

		_ = s.UpsertEvent(ctx, id, event(1, 0, 60, "A"))
		_ = s.UpsertEvent(ctx, id, event(2, 60, 120, "B"))
		_ = s.UpsertEvent(ctx, other, event(1, 0, 60, "same id elsewhere"))
		mustCommit(t, s)

		if err := s.DeleteEvent(ctx, id, 1, base); err != nil {
			t.Fatalf("DeleteEvent() error = %v", err)
		}
		if err := s.DeleteEvent(ctx, id, 404, base); err != nil {
			t.Fatalf("DeleteEvent(unknown) error = %v", err)
		}
		mustCommit(t, s)

		got := load(t, s, id)
		if len(got) != 1 || got[0].BroadcastID != 2 {
			t.Errorf("LoadTable() = %d events, want only id 2", len(got))
		}
		if got := load(t, s, other); len(got) != 1 {
			t.Error("delete must not cross tables")
		}
	})

	t.Run("DeleteEventKeepsSameIDAtOtherStart", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		id := newTable(t, s, "ch")

		// A broadcast moved by five minutes lives at two starts until the
		// old row is trimmed or dropped.
		_ = s.UpsertEvent(ctx, id, event(7, 0, 5, "old slot"))
		_ = s.UpsertEvent(ctx, id, event(7, 5, 65, "new slot"))
		mustCommit(t, s)

		if err := s.DeleteEvent(ctx, id, 7, base); err != nil {
			t.Fatalf("DeleteEvent() error = %v", err)
		}
		if err := s.DeleteEvent(ctx, id, 8, base.Add(5*time.Minute)); err != nil {
			t.Fatalf("DeleteEvent(other id) error = %v", err)
		}
		mustCommit(t, s)

		got := load(t, s, id)
		if len(got) != 1 || got[0].Title != "new slot" {
			t.Errorf("LoadTable() = %+v, want only the new slot", got)
		}
	})

	t.Run("DeleteEventAt", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		id := newTable(t, s, "ch")

		_ = s.UpsertEvent(ctx, id, event(epg.InvalidBroadcastID, 0, 60, "no id"))
		_ = s.UpsertEvent(ctx, id, event(epg.InvalidBroadcastID, 60, 120, "no id either"))
		mustCommit(t, s)

		if err := s.DeleteEventAt(ctx, id, base); err != nil {
			t.Fatalf("DeleteEventAt() error = %v", err)
		}
		mustCommit(t, s)

		got := load(t, s, id)
		if len(got) != 1 || !got[0].Start.Equal(base.Add(time.Hour)) {
			t.Errorf("LoadTable() = %+v, want the second event only", got)
		}
	})

	t.Run("DeletesThenUpsertsInOneCommit", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		id := newTable(t, s, "ch")

		_ = s.UpsertEvent(ctx, id, event(5, 0, 60, "first"))
		mustCommit(t, s)

		_ = s.DeleteEvent(ctx, id, 5, base)
		_ = s.UpsertEvent(ctx, id, event(5, 0, 60, "recreated"))
		mustCommit(t, s)

		got := load(t, s, id)
		if len(got) != 1 || got[0].Title != "recreated" {
			t.Errorf("LoadTable() = %+v, want the recreated event", got)
		}
	})

	t.Run("DeleteEventsBefore", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		a := newTable(t, s, "a")
		b := newTable(t, s, "b")

		_ = s.UpsertEvent(ctx, a, event(1, -300, -200, "old"))
		_ = s.UpsertEvent(ctx, a, event(2, -100, 100, "running"))
		_ = s.UpsertEvent(ctx, b, event(3, -200, -120, "old too"))
		mustCommit(t, s)

		if err := s.DeleteEventsBefore(ctx, base.Add(-60*time.Minute)); err != nil {
			t.Fatalf("DeleteEventsBefore() error = %v", err)
		}
		mustCommit(t, s)

		if got := load(t, s, a); len(got) != 1 || got[0].BroadcastID != 2 {
			t.Errorf("table a = %d events, want only the running one", len(got))
		}
		if got := load(t, s, b); len(got) != 0 {
			t.Errorf("table b = %d events, want 0", len(got))
		}
	})

	t.Run("LastScanTime", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		id := newTable(t, s, "ch")

		if _, ok, err := s.GetLastScanTime(ctx, id); err != nil || ok {
			t.Fatalf("GetLastScanTime() on fresh table = ok %v, err %v", ok, err)
		}

		scan := base.Add(90 * time.Second)
		if err := s.SetLastScanTime(ctx, id, scan); err != nil {
			t.Fatal(err)
		}
		mustCommit(t, s)

		got, ok, err := s.GetLastScanTime(ctx, id)
		if err != nil || !ok || !got.Equal(scan) {
			t.Errorf("GetLastScanTime() = %v, %v, %v; want %v", got, ok, err, scan)
		}
		if _, loaded, err := s.LoadTable(ctx, id); err != nil || !loaded.Equal(scan) {
			t.Errorf("LoadTable() last scan = %v, %v; want %v", loaded, err, scan)
		}
	})

	t.Run("DeleteTable", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		a := newTable(t, s, "a")
		b := newTable(t, s, "b")
		_ = s.UpsertEvent(ctx, a, event(1, 0, 60, "A"))
		_ = s.UpsertEvent(ctx, b, event(2, 0, 60, "B"))
		_ = s.SetLastScanTime(ctx, a, base)
		mustCommit(t, s)

		if err := s.DeleteTable(ctx, a); err != nil {
			t.Fatalf("DeleteTable() error = %v", err)
		}

		infos, err := s.ListTables(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(infos) != 1 || infos[0].ID != b {
			t.Errorf("ListTables() = %+v, want only b", infos)
		}
		if got := load(t, s, a); len(got) != 0 {
			t.Errorf("deleted table still has %d events", len(got))
		}
		if _, ok, _ := s.GetLastScanTime(ctx, a); ok {
			t.Error("deleted table still has a last scan time")
		}
		if got := load(t, s, b); len(got) != 1 {
			t.Error("other table was touched")
		}
	})

	t.Run("PersistsRetimedBroadcast", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		opts := epg.DefaultOptions()
		opts.Clock = func() time.Time { return base }

		tbl := epg.NewTable(epg.TableInfo{ChannelUID: "ch", Name: "Channel"}, epg.Dependencies{Store: s}, opts)
		tbl.UpdateEntry(event(7, 60, 120, "News"), true)
		if err := tbl.Persist(ctx); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
		tbl.UpdateEntry(event(7, 65, 125, "News"), true)
		tbl.FixOverlappingEvents(true)
		if err := tbl.Persist(ctx); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}

		mem := tbl.Get()
		got := load(t, s, tbl.ID())
		if len(got) != len(mem) || len(got) != 2 {
			t.Fatalf("store holds %d events, memory %d, want 2", len(got), len(mem))
		}
		for i := range got {
			if !got[i].Start.Equal(mem[i].Start) || !got[i].End.Equal(mem[i].End) {
				t.Errorf("stored event %d = [%v, %v), memory [%v, %v)", i, got[i].Start, got[i].End, mem[i].Start, mem[i].End)
			}
		}
	})

	t.Run("PersistsThroughTable", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		clock := func() time.Time { return base.Add(30 * time.Minute) }
		opts := epg.DefaultOptions()
		opts.Clock = clock

		tbl := epg.NewTable(epg.TableInfo{ChannelUID: "ch", Name: "Channel"}, epg.Dependencies{Store: s}, opts)
		tbl.UpdateEntry(event(1, 0, 60, "A"), true)
		tbl.UpdateEntry(event(2, 50, 120, "B"), true)
		tbl.FixOverlappingEvents(true)
		if err := tbl.Persist(ctx); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}

		reloaded := epg.NewTable(epg.TableInfo{ID: tbl.ID(), ChannelUID: "ch"}, epg.Dependencies{Store: s}, opts)
		if !reloaded.Load(ctx) {
			t.Fatal("Load() = false")
		}
		got := reloaded.Get()
		if len(got) != 2 || !got[0].End.Equal(base.Add(50*time.Minute)) {
			t.Errorf("reloaded events = %+v, want the trimmed first event", got)
		}
		if now := reloaded.GetTagNow(true); now == nil || now.BroadcastID != 1 {
			t.Errorf("GetTagNow() = %+v, want 1", now)
		}
	})
}
