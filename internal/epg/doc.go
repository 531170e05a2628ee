// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

// Package epg holds the in-memory programme guide: one time-ordered Table of
// broadcast Events per channel, the merge engine that folds freshly fetched
// events into a table, and the persistence controller that flushes per-event
// deltas to a Store in the background.
//
// # Architecture
//
//	BackendClient --FetchEvents--> scratch Table --UpdateEntries--> live Table
//	push notification ------------UpdateEntryState-----------------> live Table
//	Store --Load--> live Table --Persist--> Store
//
// A Registry maps channel UIDs to tables and drives the periodic sweep.
//
// # Ordering
//
// Events are keyed by their start time. No two live events in a table share a
// start time, and after every merge no two events overlap: a pass over the
// events in ascending order trims the earlier of two overlapping events at the
// start of the later one, and drops a later event that lies entirely inside
// an earlier one.
//
// # Concurrency
//
// Every Table has its own mutex. Backend fetches, store reads and writes, and
// cross-reference lookups run with the lock released; only the apply step
// holds it. Observer callbacks fire after the lock is released, so an observer
// may call back into the table.
//
// Queries return copies. Callers may keep and modify returned events freely.
//
// # Persistence
//
// Changed and deleted events are collected per broadcast id and written by
// Persist. A failed Persist puts the pending deltas back so the next call
// resends them.
//
// # Usage
//
//	reg := epg.NewRegistry(epg.Dependencies{
//	    Store:    store,
//	    Backend:  client,
//	    Resolver: index,
//	}, epg.DefaultOptions())
//
//	tbl := reg.GetOrCreate(epg.Channel{UID: "bbc-one", Name: "BBC One"})
//	if err := tbl.Update(ctx, from, to, 0, false); err != nil {
//	    logging.Warn().Err(err).Msg("EPG update failed")
//	}
//	now := tbl.GetTagNow(true)
package epg
