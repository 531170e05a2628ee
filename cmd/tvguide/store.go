// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/tomtom215/tvguide/internal/config"
	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/store"
	"github.com/tomtom215/tvguide/internal/store/badgerstore"
	"github.com/tomtom215/tvguide/internal/store/sqlstore"
)

// persistentStore is an epg.Store that owns a database handle.
type persistentStore interface {
	epg.Store
	io.Closer
}

// openStore opens the store selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (persistentStore, error) {
	var (
		s   persistentStore
		err error
	)
	switch cfg.Driver {
	case store.DriverBadger:
		var b *badgerstore.Store
		b, err = badgerstore.Open(badgerstore.Config{Path: cfg.Path, SyncWrites: cfg.SyncWrites})
		s = b
	case store.DriverDuckDB:
		var d *sqlstore.Store
		d, err = sqlstore.OpenDuckDB(ctx, cfg.Path, cfg.Threads)
		s = d
	case store.DriverSQLite:
		var d *sqlstore.Store
		d, err = sqlstore.OpenSQLite(ctx, cfg.Path)
		s = d
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store at %s: %w", cfg.Driver, cfg.Path, err)
	}
	return s, nil
}
