// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import "fmt"

// UpdateSource selects how an incoming event is applied to a table.
type UpdateSource int

const (
	// SourceLoad inserts or replaces a fresh copy of the event. Used for
	// store loads and scratch tables.
	SourceLoad UpdateSource = iota
	// SourceMerge looks the event up by start time and updates it in place.
	SourceMerge
	// SourcePush behaves like SourceMerge and also notifies observers of the
	// single event.
	SourcePush
)

func (s UpdateSource) String() string {
	switch s {
	case SourceLoad:
		return "load"
	case SourceMerge:
		return "merge"
	case SourcePush:
		return "push"
	default:
		return fmt.Sprintf("UpdateSource(%d)", int(s))
	}
}

// EventState is the lifecycle state carried by a push notification.
type EventState int

const (
	EventCreated EventState = iota
	EventUpdated
	EventDeleted
)

func (s EventState) String() string {
	switch s {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("EventState(%d)", int(s))
	}
}

// ParseEventState parses the wire name of a state.
func ParseEventState(s string) (EventState, error) {
	switch s {
	case "created":
		return EventCreated, nil
	case "updated":
		return EventUpdated, nil
	case "deleted":
		return EventDeleted, nil
	default:
		return 0, fmt.Errorf("unknown event state %q", s)
	}
}
