// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

// Package store holds what the persistent EPG store backends share: the
// event payload codec and common errors. The backends live in badgerstore
// (embedded ordered key-value store) and sqlstore (DuckDB and SQLite).
package store

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tvguide/internal/epg"
)

// Supported store drivers.
const (
	DriverBadger = "badger"
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("store: closed")

// EncodeEvent serializes an event payload.
func EncodeEvent(ev *epg.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", ev.BroadcastID, err)
	}
	return data, nil
}

// DecodeEvent deserializes an event payload.
func DecodeEvent(data []byte) (*epg.Event, error) {
	var ev epg.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

// EncodeTable serializes table metadata.
func EncodeTable(info epg.TableInfo) ([]byte, error) {
	return json.Marshal(info)
}

// DecodeTable deserializes table metadata.
func DecodeTable(data []byte) (epg.TableInfo, error) {
	var info epg.TableInfo
	err := json.Unmarshal(data, &info)
	return info, err
}
