// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

// Package badgerstore implements the persistent EPG store on BadgerDB.
//
// Keys are ordered so that one prefix scan returns a table's events in start
// order:
//
//	tbl/<table>                  table metadata (JSON)
//	evt/<table>/<start>          event payload (JSON)
//	bid/<table>/<broadcast>/<start>  broadcast id index, empty value
//	scan/<table>                 last scan time, unix nanoseconds
//
// Numbers are 8-byte big-endian with the sign bit flipped, so negative values
// (starts before 1970) sort ahead of positive ones. Event writes are queued and applied in one
// transaction per Commit; table metadata writes are immediate so the
// assigned id is known at once.
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/store"
)

const (
	prefixTable = "tbl/"
	prefixEvent = "evt/"
	prefixBID   = "bid/"
	prefixScan  = "scan/"

	sequenceKey       = "seq/tables"
	sequenceBandwidth = 16
)

// Config controls how the database is opened.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
}

type op func(txn *badger.Txn) error

// Store implements epg.Store on BadgerDB.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence

	mu      sync.Mutex
	pending []op
	closed  bool
}

var _ epg.Store = (*Store)(nil)

// Open opens (or creates) the database.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open table sequence: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("EPG store opened (badger)")

	return &Store{db: db, seq: seq}, nil
}

// Close releases the sequence and closes the database. Queued writes that
// were not committed are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if n := len(s.pending); n > 0 {
		logging.Warn().Int("pending", n).Msg("Closing EPG store with uncommitted writes")
	}
	s.pending = nil

	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close BadgerDB: %w", err))
	}
	return errors.Join(errs...)
}

func u64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v)^1<<63)
	return b
}

// i64 decodes a number written by u64.
func i64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ 1<<63)
}

func key(prefix string, parts ...int64) []byte {
	k := make([]byte, 0, len(prefix)+9*len(parts))
	k = append(k, prefix...)
	for i, p := range parts {
		if i > 0 {
			k = append(k, '/')
		}
		k = append(k, u64(p)...)
	}
	return k
}

// tablePrefix returns "<prefix><table>/".
func tablePrefix(prefix string, tableID int64) []byte {
	return append(key(prefix, tableID), '/')
}

func tableKey(tableID int64) []byte           { return key(prefixTable, tableID) }
func scanKey(tableID int64) []byte            { return key(prefixScan, tableID) }
func eventKey(tableID, start int64) []byte    { return key(prefixEvent, tableID, start) }
func bidKey(tableID, bid, start int64) []byte { return key(prefixBID, tableID, bid, start) }

// startOf returns the trailing 8-byte start of an event or index key.
func startOf(k []byte) int64 {
	return i64(k[len(k)-8:])
}

func (s *Store) checkOpen() error {
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) enqueue(o op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.pending = append(s.pending, o)
	return nil
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return store.ErrClosed
	}
	return s.db.View(fn)
}

// LoadTable returns the stored events of a table in start order.
func (s *Store) LoadTable(_ context.Context, tableID int64) ([]*epg.Event, time.Time, error) {
	var (
		events   []*epg.Event
		lastScan time.Time
	)
	err := s.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := tablePrefix(prefixEvent, tableID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ev, err := store.DecodeEvent(val)
				if err != nil {
					return err
				}
				events = append(events, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}

		ts, ok, err := readScan(txn, tableID)
		if err != nil {
			return err
		}
		if ok {
			lastScan = ts
		}
		return nil
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load table %d: %w", tableID, err)
	}
	return events, lastScan, nil
}

func readScan(txn *badger.Txn, tableID int64) (time.Time, bool, error) {
	item, err := txn.Get(scanKey(tableID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	var ts time.Time
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt last scan value for table %d", tableID)
		}
		ts = time.Unix(0, i64(val)).UTC()
		return nil
	})
	return ts, err == nil, err
}

// ListTables returns the metadata of every stored table in id order.
func (s *Store) ListTables(context.Context) ([]epg.TableInfo, error) {
	var infos []epg.TableInfo
	err := s.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixTable)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				info, err := store.DecodeTable(val)
				if err != nil {
					return err
				}
				infos = append(infos, info)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return infos, nil
}

// UpsertTable writes table metadata immediately, assigning an id from the
// sequence when info.ID <= 0.
func (s *Store) UpsertTable(_ context.Context, info epg.TableInfo) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	if info.ID <= 0 {
		next, err := s.seq.Next()
		if err != nil {
			return 0, fmt.Errorf("failed to allocate table id: %w", err)
		}
		// The sequence starts at 0, which is not a valid id.
		info.ID = int64(next) + 1
	}

	data, err := store.EncodeTable(info)
	if err != nil {
		return 0, fmt.Errorf("failed to encode table: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tableKey(info.ID), data)
	}); err != nil {
		return 0, fmt.Errorf("failed to upsert table %d: %w", info.ID, err)
	}
	return info.ID, nil
}

// DeleteTable removes a table, its events, index entries and scan time
// immediately. Queued writes for the table are applied at the next Commit as
// usual.
func (s *Store) DeleteTable(_ context.Context, tableID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	keys := [][]byte{tableKey(tableID), scanKey(tableID)}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for _, prefix := range [][]byte{tablePrefix(prefixEvent, tableID), tablePrefix(prefixBID, tableID)} {
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan table %d: %w", tableID, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("failed to delete table %d: %w", tableID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to delete table %d: %w", tableID, err)
	}
	return nil
}

// UpsertEvent queues an event write. A different event stored at the same
// start is replaced together with its index entry.
func (s *Store) UpsertEvent(_ context.Context, tableID int64, ev *epg.Event) error {
	data, err := store.EncodeEvent(ev)
	if err != nil {
		return err
	}
	start := ev.Start.UnixNano()
	bid := ev.BroadcastID

	return s.enqueue(func(txn *badger.Txn) error {
		if err := dropStoredAt(txn, tableID, start); err != nil {
			return err
		}
		if err := txn.Set(eventKey(tableID, start), data); err != nil {
			return err
		}
		if bid != epg.InvalidBroadcastID {
			return txn.Set(bidKey(tableID, bid, start), nil)
		}
		return nil
	})
}

// storedAt returns the event stored at start, or nil.
func storedAt(txn *badger.Txn, tableID, start int64) (*epg.Event, error) {
	item, err := txn.Get(eventKey(tableID, start))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ev *epg.Event
	err = item.Value(func(val []byte) error {
		ev, err = store.DecodeEvent(val)
		return err
	})
	return ev, err
}

// dropStoredAt removes the event stored at start and its index entry.
func dropStoredAt(txn *badger.Txn, tableID, start int64) error {
	old, err := storedAt(txn, tableID, start)
	if err != nil || old == nil {
		return err
	}
	if old.BroadcastID != epg.InvalidBroadcastID {
		if err := txn.Delete(bidKey(tableID, old.BroadcastID, start)); err != nil {
			return err
		}
	}
	return txn.Delete(eventKey(tableID, start))
}

// DeleteEvent queues the removal of the event stored at start, provided it
// still carries the broadcast id. A replacement written at the same start is
// kept.
func (s *Store) DeleteEvent(_ context.Context, tableID, broadcastID int64, start time.Time) error {
	ns := start.UnixNano()
	return s.enqueue(func(txn *badger.Txn) error {
		old, err := storedAt(txn, tableID, ns)
		if err != nil || old == nil || old.BroadcastID != broadcastID {
			return err
		}
		return dropStoredAt(txn, tableID, ns)
	})
}

// DeleteEventAt queues the removal of the event stored at start.
func (s *Store) DeleteEventAt(_ context.Context, tableID int64, start time.Time) error {
	ns := start.UnixNano()
	return s.enqueue(func(txn *badger.Txn) error {
		return dropStoredAt(txn, tableID, ns)
	})
}

// DeleteEventsBefore queues the removal of every event ending before horizon.
func (s *Store) DeleteEventsBefore(_ context.Context, horizon time.Time) error {
	return s.enqueue(func(txn *badger.Txn) error {
		type expired struct {
			key []byte
			ev  *epg.Event
		}
		var dead []expired

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := []byte(prefixEvent)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				ev, err := store.DecodeEvent(val)
				if err != nil {
					return err
				}
				if ev.End.Before(horizon) {
					dead = append(dead, expired{key: item.KeyCopy(nil), ev: ev})
				}
				return nil
			})
			if err != nil {
				it.Close()
				return err
			}
		}
		it.Close()

		for _, d := range dead {
			tableID := i64(d.key[len(prefixEvent) : len(prefixEvent)+8])
			if d.ev.BroadcastID != epg.InvalidBroadcastID {
				if err := txn.Delete(bidKey(tableID, d.ev.BroadcastID, startOf(d.key))); err != nil {
					return err
				}
			}
			if err := txn.Delete(d.key); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetLastScanTime reads the committed last scan time of a table.
func (s *Store) GetLastScanTime(_ context.Context, tableID int64) (time.Time, bool, error) {
	var (
		ts time.Time
		ok bool
	)
	err := s.view(func(txn *badger.Txn) error {
		var err error
		ts, ok, err = readScan(txn, tableID)
		return err
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last scan time of table %d: %w", tableID, err)
	}
	return ts, ok, nil
}

// SetLastScanTime queues a last scan time write.
func (s *Store) SetLastScanTime(_ context.Context, tableID int64, t time.Time) error {
	val := u64(t.UnixNano())
	return s.enqueue(func(txn *badger.Txn) error {
		return txn.Set(scanKey(tableID), val)
	})
}

// Commit applies the queued writes. A transaction that grows too large is
// committed and continued in a fresh one. On failure the writes not yet
// committed stay queued.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(s.pending) == 0 {
		return nil
	}

	txn := s.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	done := 0 // ops committed in earlier transactions
	for i, o := range s.pending {
		if err := ctx.Err(); err != nil {
			s.pending = s.pending[done:]
			return err
		}
		err := o(txn)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				s.pending = s.pending[done:]
				return fmt.Errorf("failed to commit EPG writes: %w", err)
			}
			done = i
			txn = s.db.NewTransaction(true)
			err = o(txn)
		}
		if err != nil {
			s.pending = s.pending[done:]
			return fmt.Errorf("failed to apply EPG write: %w", err)
		}
	}
	if err := txn.Commit(); err != nil {
		s.pending = s.pending[done:]
		return fmt.Errorf("failed to commit EPG writes: %w", err)
	}

	s.pending = nil
	return nil
}

// countPrefix counts the keys under prefix.
func (s *Store) countPrefix(prefix []byte) (int, error) {
	n := 0
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
