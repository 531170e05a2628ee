// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package epg

import "errors"

var (
	// ErrStoreUnavailable is returned when an operation needs the persistent
	// store and none is configured.
	ErrStoreUnavailable = errors.New("epg: store unavailable")

	// ErrNoBackend is returned by Update when a fetch is due but the table
	// has no backend client.
	ErrNoBackend = errors.New("epg: no backend client")

	// ErrTableNotFound is returned by registry operations addressing an
	// unknown channel.
	ErrTableNotFound = errors.New("epg: table not found")
)
