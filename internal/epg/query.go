// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import "time"

// Filter selects events in GetFiltered.
type Filter func(ev *Event) bool

func cloneOrNil(ev *Event) *Event {
	if ev == nil {
		return nil
	}
	return ev.clone()
}

// tagNowLocked returns the live event on air at now. The caller holds t.mu.
func (t *Table) tagNowLocked(now time.Time, updateIfNeeded bool) *Event {
	if !t.nowStart.IsZero() {
		if i, ok := t.indexOf(t.nowStart); ok && t.events[i].IsActive(now) {
			return t.events[i]
		}
	}
	if !updateIfNeeded {
		return nil
	}

	var lastActive *Event
	for _, ev := range t.events {
		if ev.IsActive(now) {
			t.nowStart = ev.Start
			return ev
		}
		if ev.IsUpcoming(now) {
			break
		}
		if ev.WasActive(now) {
			lastActive = ev
		}
	}

	// Bridge short gaps between consecutive broadcasts.
	if lastActive != nil && !lastActive.End.Add(GapTolerance).Before(now) {
		t.nowStart = lastActive.Start
		return lastActive
	}
	t.nowStart = time.Time{}
	return nil
}

// cachedNowLocked returns the live event the cache points at, active or not.
func (t *Table) cachedNowLocked() *Event {
	if t.nowStart.IsZero() {
		return nil
	}
	if i, ok := t.indexOf(t.nowStart); ok {
		return t.events[i]
	}
	return nil
}

// GetTagNow returns a copy of the event on air, or of the last event when it
// ended within GapTolerance. Without updateIfNeeded only the cached event is
// considered. It returns nil when nothing qualifies.
func (t *Table) GetTagNow(updateIfNeeded bool) *Event {
	now := t.opts.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneOrNil(t.tagNowLocked(now, updateIfNeeded))
}

// GetTagNext returns a copy of the event following the one on air. With
// nothing on air it returns the first upcoming event.
func (t *Table) GetTagNext() *Event {
	now := t.opts.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur := t.tagNowLocked(now, true); cur != nil {
		i, ok := t.indexOf(cur.Start)
		if ok && i+1 < len(t.events) {
			return t.events[i+1].clone()
		}
		return nil
	}
	for _, ev := range t.events {
		if ev.IsUpcoming(now) {
			return ev.clone()
		}
	}
	return nil
}

// GetTagByBroadcastID returns a copy of the event with the given broadcast
// id, or nil. InvalidBroadcastID never matches.
func (t *Table) GetTagByBroadcastID(id int64) *Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexOfBroadcastID(id); i >= 0 {
		return t.events[i].clone()
	}
	return nil
}

// GetTagByStart returns a copy of the event starting at start, or nil.
func (t *Table) GetTagByStart(start time.Time) *Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.indexOf(start); ok {
		return t.events[i].clone()
	}
	return nil
}

// GetTagBetween returns a copy of the first event lying entirely within
// [begin, end].
func (t *Table) GetTagBetween(begin, end time.Time) *Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ev := range t.events[t.search(begin):] {
		if ev.Start.After(end) {
			break
		}
		if !ev.End.After(end) {
			return ev.clone()
		}
	}
	return nil
}

// GetTagsBetween returns copies of the events starting in [begin, end]. The
// scan stops at the first event starting after end.
func (t *Table) GetTagsBetween(begin, end time.Time) []*Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Event
	for _, ev := range t.events[t.search(begin):] {
		if ev.Start.After(end) {
			break
		}
		out = append(out, ev.clone())
	}
	return out
}

// Get returns copies of all events in ascending order.
func (t *Table) Get() []*Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Event, len(t.events))
	for i, ev := range t.events {
		out[i] = ev.clone()
	}
	return out
}

// GetFiltered returns copies of the events accepted by filter. A table
// without valid entries returns nil without calling filter.
func (t *Table) GetFiltered(filter Filter) []*Event {
	now := t.opts.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasValidEntriesLocked(now) {
		return nil
	}
	var out []*Event
	for _, ev := range t.events {
		c := ev.clone()
		if filter == nil || filter(c) {
			out = append(out, c)
		}
	}
	return out
}

// HasValidEntries reports whether the table holds an event that has not
// ended yet.
func (t *Table) HasValidEntries() bool {
	now := t.opts.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasValidEntriesLocked(now)
}

func (t *Table) hasValidEntriesLocked(now time.Time) bool {
	return len(t.events) > 0 && t.events[len(t.events)-1].End.After(now)
}

// FirstStart returns the start of the earliest event, or the zero time.
func (t *Table) FirstStart() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.events) == 0 {
		return time.Time{}
	}
	return t.events[0].Start
}

// LastEnd returns the end of the latest event, or the zero time.
func (t *Table) LastEnd() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.events) == 0 {
		return time.Time{}
	}
	return t.events[len(t.events)-1].End
}

// CheckPlayingEvent refreshes the cached event on air and reports whether it
// changed or disappeared since the last lookup. Observers are notified of a
// change.
func (t *Table) CheckPlayingEvent() bool {
	now := t.opts.now()

	t.mu.Lock()
	previous := cloneOrNil(t.cachedNowLocked())
	current := t.tagNowLocked(now, true)
	changed := current != nil && (previous == nil || !previous.Equal(current))
	removed := current == nil && previous != nil
	uid := t.info.ChannelUID
	t.mu.Unlock()

	if changed || removed {
		t.deps.Observer.PlayingEventChanged(uid)
		return true
	}
	return false
}
