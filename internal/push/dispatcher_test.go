// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/tvguide/internal/epg"
)

var now = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*epg.Registry, *epg.Table) {
	t.Helper()
	opts := epg.DefaultOptions()
	opts.IgnoreDatabase = true
	opts.Clock = func() time.Time { return now }
	reg := epg.NewRegistry(epg.Dependencies{}, opts)
	return reg, reg.GetOrCreate(epg.Channel{UID: "ch1", Name: "One"})
}

func notification(state string, id int64, start time.Time) *Notification {
	return &Notification{
		ChannelUID: "ch1",
		State:      state,
		Event:      epg.Event{BroadcastID: id, Start: start, End: start.Add(time.Hour), Title: "Show"},
	}
}

func TestDispatcher_Apply(t *testing.T) {
	reg, tbl := newTestRegistry(t)
	d := NewDispatcher(reg)

	if got := d.Apply(notification("created", 1, now)); got != ResultApplied {
		t.Fatalf("created = %q, want %q", got, ResultApplied)
	}
	if tbl.Len() != 1 {
		t.Fatalf("table has %d events, want 1", tbl.Len())
	}

	upd := notification("updated", 1, now)
	upd.Event.Title = "Renamed"
	if got := d.Apply(upd); got != ResultApplied {
		t.Errorf("updated = %q, want %q", got, ResultApplied)
	}
	if ev := tbl.GetTagByBroadcastID(1); ev == nil || ev.Title != "Renamed" {
		t.Errorf("event after update = %+v", ev)
	}

	if got := d.Apply(notification("deleted", 42, now)); got != ResultNotFound {
		t.Errorf("delete unknown = %q, want %q", got, ResultNotFound)
	}

	unknown := notification("created", 2, now)
	unknown.ChannelUID = "missing"
	if got := d.Apply(unknown); got != ResultUnknownChannel {
		t.Errorf("unknown channel = %q, want %q", got, ResultUnknownChannel)
	}

	if got := d.Apply(notification("moved", 1, now)); got != ResultInvalid {
		t.Errorf("bad state = %q, want %q", got, ResultInvalid)
	}
}

func TestDispatcher_DeleteWaitsForRetention(t *testing.T) {
	reg, tbl := newTestRegistry(t)
	d := NewDispatcher(reg)

	current := now.Add(-time.Hour)
	old := now.Add(-3 * 24 * time.Hour)
	d.Apply(notification("created", 1, current))
	d.Apply(notification("created", 2, old))

	if got := d.Apply(notification("deleted", 1, current)); got != ResultApplied {
		t.Errorf("delete current = %q, want %q", got, ResultApplied)
	}
	if tbl.GetTagByBroadcastID(1) == nil {
		t.Error("event still inside retention was removed")
	}

	if got := d.Apply(notification("deleted", 2, old)); got != ResultApplied {
		t.Errorf("delete old = %q, want %q", got, ResultApplied)
	}
	if tbl.GetTagByBroadcastID(2) != nil {
		t.Error("expired event was not removed")
	}
}

func TestDispatcher_Handle(t *testing.T) {
	reg, tbl := newTestRegistry(t)
	d := NewDispatcher(reg)
	ctx := context.Background()

	payload, err := Encode(notification("created", 3, now))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Handle(ctx, "msg-1", payload); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if tbl.GetTagByBroadcastID(3) == nil {
		t.Error("notification was not applied")
	}

	if err := d.Handle(ctx, "msg-2", []byte("not json")); err != nil {
		t.Errorf("Handle(malformed) error = %v, want nil", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := d.Handle(canceled, "msg-3", payload); !errors.Is(err, context.Canceled) {
		t.Errorf("Handle(canceled) error = %v, want context.Canceled", err)
	}
}

func TestDispatcher_HandleDeleteByBroadcastID(t *testing.T) {
	reg, tbl := newTestRegistry(t)
	d := NewDispatcher(reg)
	ctx := context.Background()

	d.Apply(notification("created", 2, now.Add(-3*24*time.Hour)))
	if tbl.GetTagByBroadcastID(2) == nil {
		t.Fatal("setup: event 2 missing")
	}

	payload := []byte(`{"id":"n9","channel_uid":"ch1","state":"deleted","event":{"broadcast_id":2}}`)
	if err := d.Handle(ctx, "msg-9", payload); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if tbl.GetTagByBroadcastID(2) != nil {
		t.Error("delete carrying only a broadcast id was not applied")
	}
}

type staticLookup map[string]*epg.Table

func (l staticLookup) Get(uid string) (*epg.Table, bool) {
	t, ok := l[uid]
	return t, ok
}

func TestDispatcher_CustomLookup(t *testing.T) {
	tbl := epg.NewTable(epg.TableInfo{ChannelUID: "ch1"}, epg.Dependencies{}, epg.DefaultOptions())
	d := NewDispatcher(staticLookup{"ch1": tbl})

	if got := d.Apply(notification("created", 1, now)); got != ResultApplied {
		t.Errorf("Apply() = %q, want %q", got, ResultApplied)
	}
	if tbl.Len() != 1 {
		t.Errorf("table has %d events, want 1", tbl.Len())
	}
}
