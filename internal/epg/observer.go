// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"github.com/tomtom215/tvguide/internal/logging"
)

// Observer receives change notifications. Calls are made without any table
// lock held and may arrive from several goroutines.
type Observer interface {
	// TableChanged fires after a merge touched the table.
	TableChanged(channelUID string)
	// EventChanged fires after a push notification was applied.
	EventChanged(channelUID string, ev Event, state EventState)
	// PlayingEventChanged fires when the event on air on the playing
	// channel may have changed.
	PlayingEventChanged(channelUID string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) TableChanged(string)                   {}
func (NopObserver) EventChanged(string, Event, EventState) {}
func (NopObserver) PlayingEventChanged(string)            {}

// LogObserver writes notifications to the debug log.
type LogObserver struct{}

func (LogObserver) TableChanged(channelUID string) {
	logging.Debug().Str("channel_uid", channelUID).Msg("EPG table changed")
}

func (LogObserver) EventChanged(channelUID string, ev Event, state EventState) {
	logging.Debug().
		Str("channel_uid", channelUID).
		Int64("broadcast_id", ev.BroadcastID).
		Time("start", ev.Start).
		Str("state", state.String()).
		Msg("EPG event changed")
}

func (LogObserver) PlayingEventChanged(channelUID string) {
	logging.Debug().Str("channel_uid", channelUID).Msg("Playing event may have changed")
}

// Observers fans a notification out to several observers in order.
type Observers []Observer

func (o Observers) TableChanged(channelUID string) {
	for _, obs := range o {
		obs.TableChanged(channelUID)
	}
}

func (o Observers) EventChanged(channelUID string, ev Event, state EventState) {
	for _, obs := range o {
		obs.EventChanged(channelUID, ev, state)
	}
}

func (o Observers) PlayingEventChanged(channelUID string) {
	for _, obs := range o {
		obs.PlayingEventChanged(channelUID)
	}
}
