// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package push

import (
	"context"

	"github.com/google/uuid"

	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/metrics"
)

// Outcome of one notification.
const (
	ResultApplied        = "applied"
	ResultNotFound       = "not_found"
	ResultUnknownChannel = "unknown_channel"
	ResultInvalid        = "invalid"
)

// TableLookup finds the table of a channel. *epg.Registry implements it.
type TableLookup interface {
	Get(channelUID string) (*epg.Table, bool)
}

// Dispatcher routes notifications to tables.
type Dispatcher struct {
	tables TableLookup
}

// NewDispatcher returns a dispatcher over tables.
func NewDispatcher(tables TableLookup) *Dispatcher {
	return &Dispatcher{tables: tables}
}

// Apply hands n to the table of its channel and returns the outcome.
func (d *Dispatcher) Apply(n *Notification) string {
	state, err := n.EventState()
	if err != nil {
		metrics.PushNotifications.WithLabelValues(n.State, ResultInvalid).Inc()
		return ResultInvalid
	}

	result := ResultApplied
	tbl, ok := d.tables.Get(n.ChannelUID)
	switch {
	case !ok:
		result = ResultUnknownChannel
	default:
		ev := n.Event
		if !tbl.UpdateEntryState(&ev, state, true) {
			result = ResultNotFound
		}
	}

	metrics.PushNotifications.WithLabelValues(state.String(), result).Inc()
	logging.Debug().
		Str("notification_id", n.ID).
		Str("channel_uid", n.ChannelUID).
		Int64("broadcast_id", n.Event.BroadcastID).
		Str("state", state.String()).
		Str("result", result).
		Msg("Push notification handled")
	return result
}

// Handle decodes payload and applies it. Only a canceled context is
// reported as an error; malformed or unroutable notifications are logged
// and dropped so they are not redelivered forever.
func (d *Dispatcher) Handle(ctx context.Context, messageID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := Decode(payload)
	if err != nil {
		metrics.PushNotifications.WithLabelValues("unknown", ResultInvalid).Inc()
		logging.Warn().Err(err).Str("message_id", messageID).Msg("Dropping push notification")
		return nil
	}
	if n.ID == "" {
		n.ID = messageID
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	d.Apply(n)
	return nil
}
