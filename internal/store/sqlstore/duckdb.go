// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/tvguide/internal/logging"
)

// DuckDB is the dialect of the duckdb-go driver.
var DuckDB = Dialect{Name: "duckdb"}

// OpenDuckDB opens (or creates) a DuckDB database at path and initializes
// the schema. Use ":memory:" for a throwaway database.
func OpenDuckDB(ctx context.Context, path string, threads int) (*Store, error) {
	if threads <= 0 {
		threads = 1
	}
	// Extension auto-loading is disabled so opening never reaches the network.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, threads)

	conn, err := sql.Open(DuckDB.Name, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(conn, DuckDB)
	if err := s.InitSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().Str("path", path).Int("threads", threads).Msg("DuckDB EPG store opened")
	return s, nil
}
