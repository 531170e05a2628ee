// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

// Package sqlstore implements epg.Store on top of database/sql. Two dialects
// are supported: DuckDB (the analytics engine the rest of the stack already
// ships) and SQLite.
//
// Schema:
//
//	epg_tables(id, name, scraper, channel_uid, client_id, is_radio, last_scan)
//	epg_events(table_id, start_utc, end_utc, broadcast_id, payload)
//
// Times are stored as UTC unix nanoseconds. The payload column holds the
// JSON encoded event. Event writes are queued and applied in one transaction
// by Commit.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/store"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string

	// Constraints enables the primary key and secondary index on
	// epg_events. DuckDB rejects a delete followed by a re-insert of the
	// same key inside one transaction, so its events table is left
	// unconstrained and uniqueness is kept by the write path.
	Constraints bool
}

type op func(ctx context.Context, tx *sql.Tx) error

// Store is a SQL backed epg.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect

	mu      sync.Mutex
	pending []op
	closed  bool
}

// New wraps an open database. InitSchema must run before first use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Dialect returns the dialect of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InitSchema creates the EPG tables.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS epg_tables (
			id BIGINT PRIMARY KEY,
			name VARCHAR NOT NULL DEFAULT '',
			scraper VARCHAR NOT NULL DEFAULT '',
			channel_uid VARCHAR NOT NULL DEFAULT '',
			client_id INTEGER NOT NULL DEFAULT 0,
			is_radio BOOLEAN NOT NULL DEFAULT FALSE,
			last_scan BIGINT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create epg_tables table: %w", err)
	}

	events := `
		CREATE TABLE IF NOT EXISTS epg_events (
			table_id BIGINT NOT NULL,
			start_utc BIGINT NOT NULL,
			end_utc BIGINT NOT NULL,
			broadcast_id BIGINT NOT NULL,
			payload TEXT NOT NULL
		)
	`
	if s.dialect.Constraints {
		events = `
		CREATE TABLE IF NOT EXISTS epg_events (
			table_id BIGINT NOT NULL,
			start_utc BIGINT NOT NULL,
			end_utc BIGINT NOT NULL,
			broadcast_id BIGINT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (table_id, start_utc)
		)
	`
	}
	if _, err := s.db.ExecContext(ctx, events); err != nil {
		return fmt.Errorf("failed to create epg_events table: %w", err)
	}

	if s.dialect.Constraints {
		_, err = s.db.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_epg_events_broadcast ON epg_events(table_id, broadcast_id)
		`)
		if err != nil {
			return fmt.Errorf("failed to create broadcast index: %w", err)
		}
	}

	return nil
}

// Close closes the database. Uncommitted writes are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if n := len(s.pending); n > 0 {
		logging.Warn().Int("pending", n).Str("dialect", s.dialect.Name).Msg("Closing EPG store with uncommitted writes")
	}
	s.pending = nil
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) enqueue(o op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.pending = append(s.pending, o)
	return nil
}

func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// LoadTable returns the stored events of a table in start order.
func (s *Store) LoadTable(ctx context.Context, tableID int64) ([]*epg.Event, time.Time, error) {
	if s.isClosed() {
		return nil, time.Time{}, store.ErrClosed
	}

	lastScan, _, err := s.GetLastScanTime(ctx, tableID)
	if err != nil {
		return nil, time.Time{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM epg_events
		WHERE table_id = ?
		ORDER BY start_utc
	`, tableID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query events of table %d: %w", tableID, err)
	}
	defer rows.Close()

	var events []*epg.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan event: %w", err)
		}
		ev, err := store.DecodeEvent([]byte(payload))
		if err != nil {
			return nil, time.Time{}, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, lastScan, nil
}

// ListTables returns the metadata of every stored table ordered by id.
func (s *Store) ListTables(ctx context.Context) ([]epg.TableInfo, error) {
	if s.isClosed() {
		return nil, store.ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, scraper, channel_uid, client_id, is_radio
		FROM epg_tables
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var infos []epg.TableInfo
	for rows.Next() {
		var info epg.TableInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.ScraperName, &info.ChannelUID, &info.ClientID, &info.IsRadio); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}
	return infos, nil
}

// UpsertTable writes table metadata immediately and returns its id. A new
// id is assigned when info.ID is not positive.
func (s *Store) UpsertTable(ctx context.Context, info epg.TableInfo) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}

	id := info.ID
	if id <= 0 {
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM epg_tables`).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to allocate table id: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO epg_tables (id, name, scraper, channel_uid, client_id, is_radio)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			scraper = EXCLUDED.scraper,
			channel_uid = EXCLUDED.channel_uid,
			client_id = EXCLUDED.client_id,
			is_radio = EXCLUDED.is_radio
	`, id, info.Name, info.ScraperName, info.ChannelUID, info.ClientID, info.IsRadio)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert table %d: %w", id, err)
	}
	return id, nil
}

// DeleteTable removes a table, its events and its last scan time at once.
func (s *Store) DeleteTable(ctx context.Context, tableID int64) error {
	if s.isClosed() {
		return store.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM epg_events WHERE table_id = ?`, tableID); err != nil {
		return fmt.Errorf("failed to delete events of table %d: %w", tableID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM epg_tables WHERE id = ?`, tableID); err != nil {
		return fmt.Errorf("failed to delete table %d: %w", tableID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table delete: %w", err)
	}
	return nil
}

// UpsertEvent queues a write of ev, replacing whatever is stored at its start.
func (s *Store) UpsertEvent(_ context.Context, tableID int64, ev *epg.Event) error {
	payload, err := store.EncodeEvent(ev)
	if err != nil {
		return err
	}
	start, end, bid := nanos(ev.Start), nanos(ev.End), ev.BroadcastID

	return s.enqueue(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM epg_events WHERE table_id = ? AND start_utc = ?
		`, tableID, start); err != nil {
			return fmt.Errorf("failed to replace event at %d: %w", start, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO epg_events (table_id, start_utc, end_utc, broadcast_id, payload)
			VALUES (?, ?, ?, ?, ?)
		`, tableID, start, end, bid, string(payload))
		if err != nil {
			return fmt.Errorf("failed to insert event %d: %w", bid, err)
		}
		return nil
	})
}

// DeleteEvent queues the removal of the event stored at start if it carries
// broadcastID.
func (s *Store) DeleteEvent(_ context.Context, tableID, broadcastID int64, start time.Time) error {
	at := nanos(start)
	return s.enqueue(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM epg_events WHERE table_id = ? AND broadcast_id = ? AND start_utc = ?
		`, tableID, broadcastID, at)
		if err != nil {
			return fmt.Errorf("failed to delete event %d at %d: %w", broadcastID, at, err)
		}
		return nil
	})
}

// DeleteEventAt queues the removal of the event starting at start.
func (s *Store) DeleteEventAt(_ context.Context, tableID int64, start time.Time) error {
	at := nanos(start)
	return s.enqueue(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM epg_events WHERE table_id = ? AND start_utc = ?
		`, tableID, at)
		if err != nil {
			return fmt.Errorf("failed to delete event at %d: %w", at, err)
		}
		return nil
	})
}

// DeleteEventsBefore queues the removal of every event that ended before
// horizon, across all tables.
func (s *Store) DeleteEventsBefore(_ context.Context, horizon time.Time) error {
	cut := nanos(horizon)
	return s.enqueue(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM epg_events WHERE end_utc < ?`, cut); err != nil {
			return fmt.Errorf("failed to delete expired events: %w", err)
		}
		return nil
	})
}

// GetLastScanTime returns the committed last scan time of a table.
func (s *Store) GetLastScanTime(ctx context.Context, tableID int64) (time.Time, bool, error) {
	if s.isClosed() {
		return time.Time{}, false, store.ErrClosed
	}

	var scan sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT last_scan FROM epg_tables WHERE id = ?`, tableID).Scan(&scan)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last scan of table %d: %w", tableID, err)
	}
	if !scan.Valid {
		return time.Time{}, false, nil
	}
	return fromNanos(scan.Int64), true, nil
}

// SetLastScanTime queues a write of the last scan time.
func (s *Store) SetLastScanTime(_ context.Context, tableID int64, scan time.Time) error {
	at := nanos(scan)
	return s.enqueue(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE epg_tables SET last_scan = ? WHERE id = ?`, at, tableID); err != nil {
			return fmt.Errorf("failed to set last scan of table %d: %w", tableID, err)
		}
		return nil
	})
}

// Commit applies the queued writes in one transaction. On failure nothing
// is applied and the writes stay queued.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, o := range s.pending {
		if err := o(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply EPG write: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit EPG writes: %w", err)
	}

	logging.Debug().Int("writes", len(s.pending)).Str("dialect", s.dialect.Name).Msg("Committed EPG writes")
	s.pending = nil
	return nil
}
