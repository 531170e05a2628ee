// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

// Package push applies event change notifications pushed by the backend.
//
// Wire format (JSON):
//
//	{"id": "...", "channel_uid": "...", "state": "created|updated|deleted", "event": {...}}
//
// Notifications are decoded, validated and handed to the table of their
// channel through UpdateEntryState. With the nats build tag, Subscriber
// consumes them from a NATS JetStream topic through Watermill.
package push

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/validation"
)

// ErrInvalidNotification wraps every decode or validation failure.
var ErrInvalidNotification = errors.New("invalid push notification")

const stateDeleted = "deleted"

// Notification is one pushed event change.
type Notification struct {
	ID         string    `json:"id,omitempty" validate:"omitempty,max=128"`
	ChannelUID string    `json:"channel_uid" validate:"required,max=256"`
	State      string    `json:"state" validate:"required,oneof=created updated deleted"`
	Event      epg.Event `json:"event"`
}

// Decode parses and validates a notification payload. Created and updated
// notifications carry a full event with start < end. A deleted notification
// only needs the broadcast id, which is how the table finds the event.
func Decode(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if verr := validation.ValidateStruct(&n); verr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, verr)
	}
	switch {
	case n.State == stateDeleted:
		if n.Event.BroadcastID == epg.InvalidBroadcastID {
			return nil, fmt.Errorf("%w: delete requires a broadcast id", ErrInvalidNotification)
		}
	case !n.Event.Valid():
		return nil, fmt.Errorf("%w: event must end after it starts", ErrInvalidNotification)
	}
	n.Event.Start, n.Event.End = n.Event.Start.UTC(), n.Event.End.UTC()
	return &n, nil
}

// Encode serializes a notification. The backend side and tests use it.
func Encode(n *Notification) ([]byte, error) {
	return json.Marshal(n)
}

// EventState maps the wire state to the table state.
func (n *Notification) EventState() (epg.EventState, error) {
	return epg.ParseEventState(n.State)
}
