// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"context"
	"time"
)

// Channel identifies the source of one table's events.
type Channel struct {
	UID      string `json:"uid" validate:"required,max=256"`
	ClientID int    `json:"client_id"`
	Name     string `json:"name" validate:"max=512"`
	IsRadio  bool   `json:"is_radio"`
}

// TableInfo is the persisted metadata of a table. ID <= 0 means the table has
// not been stored yet.
type TableInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ScraperName string `json:"scraper_name"`
	ChannelUID  string `json:"channel_uid"`
	ClientID    int    `json:"client_id"`
	IsRadio     bool   `json:"is_radio"`
}

// Channel returns the channel the table is bound to.
func (i TableInfo) Channel() Channel {
	return Channel{UID: i.ChannelUID, ClientID: i.ClientID, Name: i.Name, IsRadio: i.IsRadio}
}

// BackendClient supplies raw events for a channel over a time window.
// Implementations must be safe for concurrent use.
type BackendClient interface {
	FetchEvents(ctx context.Context, ch Channel, start, end time.Time) ([]*Event, error)
}

// ChannelSource lists the channels the backend currently offers.
type ChannelSource interface {
	ListChannels(ctx context.Context) ([]Channel, error)
}

// Store is the persistent EPG database. Writes may be queued until Commit.
// Implementations must be safe for concurrent use.
type Store interface {
	// LoadTable returns all stored events of the table and its last scan
	// time (zero when never scanned).
	LoadTable(ctx context.Context, tableID int64) ([]*Event, time.Time, error)

	// ListTables returns the metadata of every stored table.
	ListTables(ctx context.Context) ([]TableInfo, error)

	// UpsertTable inserts the table when info.ID <= 0, otherwise updates it,
	// and returns the table id. It is applied immediately.
	UpsertTable(ctx context.Context, info TableInfo) (int64, error)

	// DeleteTable removes a table with all its events.
	DeleteTable(ctx context.Context, tableID int64) error

	UpsertEvent(ctx context.Context, tableID int64, ev *Event) error

	// DeleteEvent removes the event stored at start if it carries
	// broadcastID. Another event at the same start, or the same broadcast
	// at another start, is left alone.
	DeleteEvent(ctx context.Context, tableID int64, broadcastID int64, start time.Time) error

	// DeleteEventAt removes the event starting at start. Used for events
	// without a broadcast id.
	DeleteEventAt(ctx context.Context, tableID int64, start time.Time) error

	// DeleteEventsBefore removes every event of every table ending before
	// horizon.
	DeleteEventsBefore(ctx context.Context, horizon time.Time) error

	// GetLastScanTime returns the stored last scan time; ok is false when
	// the table was never scanned.
	GetLastScanTime(ctx context.Context, tableID int64) (t time.Time, ok bool, err error)
	SetLastScanTime(ctx context.Context, tableID int64, t time.Time) error

	// Commit applies the queued writes.
	Commit(ctx context.Context) error
}

// Resolver finds the timer and recording associated with an event. Lookups
// are pure and may take their own locks; tables never call them while holding
// their lock.
type Resolver interface {
	FindTimerFor(ev *Event) *Timer
	FindRecordingFor(ev *Event) *Recording
}
