// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tomtom215/tvguide/internal/logging"
)

// SQLite is the dialect of the go-sqlite3 driver.
var SQLite = Dialect{Name: "sqlite3", Constraints: true}

// OpenSQLite opens (or creates) a SQLite database at path in WAL mode and
// initializes the schema.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	conn, err := sql.Open(SQLite.Name, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across connections.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := New(conn, SQLite)
	if err := s.InitSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	logging.Info().Str("path", path).Msg("SQLite EPG store opened")
	return s, nil
}
