// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import (
	"time"
)

// InvalidBroadcastID marks an event whose backend did not assign an id.
const InvalidBroadcastID int64 = 0

// Event is one scheduled broadcast. Start is the key of the event inside its
// table and is never changed by Update.
type Event struct {
	BroadcastID int64     `json:"broadcast_id"`
	TableID     int64     `json:"table_id,omitempty"`
	ChannelUID  string    `json:"channel_uid,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`

	Title         string `json:"title"`
	PlotOutline   string `json:"plot_outline,omitempty"`
	Plot          string `json:"plot,omitempty"`
	OriginalTitle string `json:"original_title,omitempty"`
	Cast          string `json:"cast,omitempty"`
	Director      string `json:"director,omitempty"`
	Writer        string `json:"writer,omitempty"`
	Year          int    `json:"year,omitempty"`
	IMDBNumber    string `json:"imdb_number,omitempty"`
	IconPath      string `json:"icon_path,omitempty"`

	GenreType        int    `json:"genre_type,omitempty"`
	GenreSubType     int    `json:"genre_sub_type,omitempty"`
	GenreDescription string `json:"genre_description,omitempty"`

	FirstAired     time.Time `json:"first_aired,omitempty"`
	ParentalRating int       `json:"parental_rating,omitempty"`
	StarRating     int       `json:"star_rating,omitempty"`

	SeriesNumber  int    `json:"series_number,omitempty"`
	EpisodeNumber int    `json:"episode_number,omitempty"`
	EpisodePart   int    `json:"episode_part,omitempty"`
	EpisodeName   string `json:"episode_name,omitempty"`
	SeriesLink    string `json:"series_link,omitempty"`
	Flags         uint32 `json:"flags,omitempty"`

	// Looked up through a Resolver, never owned by the event.
	timer     *Timer
	recording *Recording
}

// Timer is a scheduled recording that may target an event.
type Timer struct {
	ID          string    `json:"id" validate:"required,max=128"`
	ChannelUID  string    `json:"channel_uid" validate:"required,max=256"`
	BroadcastID int64     `json:"broadcast_id"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtfield=Start"`
	Title       string    `json:"title,omitempty" validate:"max=512"`
}

// Recording is a completed capture of an event.
type Recording struct {
	ID          string    `json:"id" validate:"required,max=128"`
	ChannelUID  string    `json:"channel_uid" validate:"required,max=256"`
	BroadcastID int64     `json:"broadcast_id"`
	Start       time.Time `json:"start" validate:"required"`
	Title       string    `json:"title,omitempty" validate:"max=512"`
	Path        string    `json:"path,omitempty" validate:"max=4096"`
}

// Duration returns End - Start.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// IsActive reports whether the event is on air at now.
func (e *Event) IsActive(now time.Time) bool {
	return !e.Start.After(now) && now.Before(e.End)
}

// WasActive reports whether the event has ended at now.
func (e *Event) WasActive(now time.Time) bool {
	return !e.End.After(now)
}

// IsUpcoming reports whether the event starts after now.
func (e *Event) IsUpcoming(now time.Time) bool {
	return e.Start.After(now)
}

// Valid reports whether the event has a non-degenerate interval.
func (e *Event) Valid() bool {
	return e.Start.Before(e.End)
}

// Timer returns the timer associated with the event, or nil.
func (e *Event) Timer() *Timer { return e.timer }

// Recording returns the recording associated with the event, or nil.
func (e *Event) Recording() *Recording { return e.recording }

// HasTimer reports whether a timer targets the event.
func (e *Event) HasTimer() bool { return e.timer != nil }

// HasRecording reports whether the event has been recorded.
func (e *Event) HasRecording() bool { return e.recording != nil }

// Update copies the mutable fields of incoming into e and reports whether
// anything changed. The broadcast id is only taken over when isNew is set.
func (e *Event) Update(incoming *Event, isNew bool) bool {
	if incoming == nil {
		return false
	}

	changed := !e.sameContent(incoming)
	if isNew && e.BroadcastID != incoming.BroadcastID {
		e.BroadcastID = incoming.BroadcastID
		changed = true
	}
	if !changed {
		return false
	}

	e.End = incoming.End
	e.Title = incoming.Title
	e.PlotOutline = incoming.PlotOutline
	e.Plot = incoming.Plot
	e.OriginalTitle = incoming.OriginalTitle
	e.Cast = incoming.Cast
	e.Director = incoming.Director
	e.Writer = incoming.Writer
	e.Year = incoming.Year
	e.IMDBNumber = incoming.IMDBNumber
	e.IconPath = incoming.IconPath
	e.GenreType = incoming.GenreType
	e.GenreSubType = incoming.GenreSubType
	e.GenreDescription = incoming.GenreDescription
	e.FirstAired = incoming.FirstAired
	e.ParentalRating = incoming.ParentalRating
	e.StarRating = incoming.StarRating
	e.SeriesNumber = incoming.SeriesNumber
	e.EpisodeNumber = incoming.EpisodeNumber
	e.EpisodePart = incoming.EpisodePart
	e.EpisodeName = incoming.EpisodeName
	e.SeriesLink = incoming.SeriesLink
	e.Flags = incoming.Flags
	return true
}

// Equal reports whether both events describe the same broadcast with the same
// content. Table bookkeeping fields and cross-references are ignored.
func (e *Event) Equal(other *Event) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.BroadcastID == other.BroadcastID &&
		e.Start.Equal(other.Start) &&
		e.sameContent(other)
}

func (e *Event) sameContent(o *Event) bool {
	return e.End.Equal(o.End) &&
		e.Title == o.Title &&
		e.PlotOutline == o.PlotOutline &&
		e.Plot == o.Plot &&
		e.OriginalTitle == o.OriginalTitle &&
		e.Cast == o.Cast &&
		e.Director == o.Director &&
		e.Writer == o.Writer &&
		e.Year == o.Year &&
		e.IMDBNumber == o.IMDBNumber &&
		e.IconPath == o.IconPath &&
		e.GenreType == o.GenreType &&
		e.GenreSubType == o.GenreSubType &&
		e.GenreDescription == o.GenreDescription &&
		e.FirstAired.Equal(o.FirstAired) &&
		e.ParentalRating == o.ParentalRating &&
		e.StarRating == o.StarRating &&
		e.SeriesNumber == o.SeriesNumber &&
		e.EpisodeNumber == o.EpisodeNumber &&
		e.EpisodePart == o.EpisodePart &&
		e.EpisodeName == o.EpisodeName &&
		e.SeriesLink == o.SeriesLink &&
		e.Flags == o.Flags
}

// clone returns a shallow copy. Timer and recording pointers are shared; both
// are treated as read-only once attached.
func (e *Event) clone() *Event {
	c := *e
	return &c
}

// detach drops the cross-references before the event leaves its table.
func (e *Event) detach() {
	e.timer = nil
	e.recording = nil
}

// dirtyKey addresses an event inside the changed and deleted sets. A
// broadcast id can briefly live at two starts while the backend moves it, so
// the start is always part of the key.
type dirtyKey struct {
	broadcastID int64
	start       int64
}

func keyOf(e *Event) dirtyKey {
	return dirtyKey{broadcastID: e.BroadcastID, start: e.Start.UnixNano()}
}
