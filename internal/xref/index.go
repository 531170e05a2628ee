// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

// Package xref keeps the timers and recordings known to the service and
// resolves them against EPG events.
//
// A timer or recording matches an event of the same channel when both carry
// the same valid broadcast id. Without a broadcast id it matches on the exact
// start time.
package xref

import (
	"sort"
	"sync"

	"github.com/tomtom215/tvguide/internal/epg"
)

// Index is an in-memory epg.Resolver. Stored values are never mutated, so
// the pointers it hands out stay valid snapshots.
type Index struct {
	mu         sync.RWMutex
	timers     map[string]*epg.Timer     // by id
	recordings map[string]*epg.Recording // by id
	timersBy   map[string]map[string]*epg.Timer
	recsBy     map[string]map[string]*epg.Recording
}

var _ epg.Resolver = (*Index)(nil)

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		timers:     make(map[string]*epg.Timer),
		recordings: make(map[string]*epg.Recording),
		timersBy:   make(map[string]map[string]*epg.Timer),
		recsBy:     make(map[string]map[string]*epg.Recording),
	}
}

// PutTimer adds or replaces a timer. It returns the channels whose events
// need their references refreshed.
func (x *Index) PutTimer(t epg.Timer) []string {
	t.Start, t.End = t.Start.UTC(), t.End.UTC()

	x.mu.Lock()
	defer x.mu.Unlock()

	affected := []string{t.ChannelUID}
	if prev, ok := x.timers[t.ID]; ok {
		delete(x.timersBy[prev.ChannelUID], prev.ID)
		if prev.ChannelUID != t.ChannelUID {
			affected = append(affected, prev.ChannelUID)
		}
	}
	x.timers[t.ID] = &t
	byID := x.timersBy[t.ChannelUID]
	if byID == nil {
		byID = make(map[string]*epg.Timer)
		x.timersBy[t.ChannelUID] = byID
	}
	byID[t.ID] = &t
	return affected
}

// RemoveTimer drops a timer and returns its channel.
func (x *Index) RemoveTimer(id string) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	t, ok := x.timers[id]
	if !ok {
		return "", false
	}
	delete(x.timers, id)
	delete(x.timersBy[t.ChannelUID], id)
	return t.ChannelUID, true
}

// Timers returns every timer ordered by start, then id.
func (x *Index) Timers() []epg.Timer {
	x.mu.RLock()
	out := make([]epg.Timer, 0, len(x.timers))
	for _, t := range x.timers {
		out = append(out, *t)
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PutRecording adds or replaces a recording. It returns the channels whose
// events need their references refreshed.
func (x *Index) PutRecording(r epg.Recording) []string {
	r.Start = r.Start.UTC()

	x.mu.Lock()
	defer x.mu.Unlock()

	affected := []string{r.ChannelUID}
	if prev, ok := x.recordings[r.ID]; ok {
		delete(x.recsBy[prev.ChannelUID], prev.ID)
		if prev.ChannelUID != r.ChannelUID {
			affected = append(affected, prev.ChannelUID)
		}
	}
	x.recordings[r.ID] = &r
	byID := x.recsBy[r.ChannelUID]
	if byID == nil {
		byID = make(map[string]*epg.Recording)
		x.recsBy[r.ChannelUID] = byID
	}
	byID[r.ID] = &r
	return affected
}

// RemoveRecording drops a recording and returns its channel.
func (x *Index) RemoveRecording(id string) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	r, ok := x.recordings[id]
	if !ok {
		return "", false
	}
	delete(x.recordings, id)
	delete(x.recsBy[r.ChannelUID], id)
	return r.ChannelUID, true
}

// Recordings returns every recording ordered by start, then id.
func (x *Index) Recordings() []epg.Recording {
	x.mu.RLock()
	out := make([]epg.Recording, 0, len(x.recordings))
	for _, r := range x.recordings {
		out = append(out, *r)
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindTimerFor returns the timer targeting ev, or nil.
func (x *Index) FindTimerFor(ev *epg.Event) *epg.Timer {
	if ev == nil {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	var byID, byStart *epg.Timer
	for _, t := range x.timersBy[ev.ChannelUID] {
		switch {
		case ev.BroadcastID != epg.InvalidBroadcastID && t.BroadcastID == ev.BroadcastID:
			if byID == nil || t.ID < byID.ID {
				byID = t
			}
		case t.BroadcastID == epg.InvalidBroadcastID && t.Start.Equal(ev.Start):
			if byStart == nil || t.ID < byStart.ID {
				byStart = t
			}
		}
	}
	if byID != nil {
		return byID
	}
	return byStart
}

// FindRecordingFor returns the recording of ev, or nil.
func (x *Index) FindRecordingFor(ev *epg.Event) *epg.Recording {
	if ev == nil {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	var byID, byStart *epg.Recording
	for _, r := range x.recsBy[ev.ChannelUID] {
		switch {
		case ev.BroadcastID != epg.InvalidBroadcastID && r.BroadcastID == ev.BroadcastID:
			if byID == nil || r.ID < byID.ID {
				byID = r
			}
		case r.BroadcastID == epg.InvalidBroadcastID && r.Start.Equal(ev.Start):
			if byStart == nil || r.ID < byStart.ID {
				byStart = r
			}
		}
	}
	if byID != nil {
		return byID
	}
	return byStart
}
