// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package api

import (
	"context"
	"time"

	"github.com/tomtom215/tvguide/internal/epg"
)

// Registry is the part of *epg.Registry the handlers use.
type Registry interface {
	Tables() []*epg.Table
	Get(channelUID string) (*epg.Table, bool)
	Update(ctx context.Context, channelUID string) error
	SetPlayingChannel(channelUID string)
	ClearPlayingChannel()
	PlayingChannel() (string, bool)
	RefreshCrossReferences(channelUID string)
}

// CrossReferences is the timer and recording index. *xref.Index implements it.
type CrossReferences interface {
	PutTimer(t epg.Timer) []string
	RemoveTimer(id string) (string, bool)
	Timers() []epg.Timer
	PutRecording(r epg.Recording) []string
	RemoveRecording(id string) (string, bool)
	Recordings() []epg.Recording
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	registry Registry
	xref     CrossReferences
	started  time.Time
	version  string

	// updateTimeout bounds a forced update triggered over HTTP.
	updateTimeout time.Duration
}

// NewHandler creates the handlers. xref may be nil, which disables the timer
// and recording endpoints.
func NewHandler(registry Registry, xref CrossReferences, version string) *Handler {
	return &Handler{
		registry:      registry,
		xref:          xref,
		started:       time.Now(),
		version:       version,
		updateTimeout: 2 * time.Minute,
	}
}
