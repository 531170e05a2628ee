// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/logging"
)

// eventResponse is an event with its cross-references flattened to ids.
type eventResponse struct {
	epg.Event
	TimerID     string `json:"timer_id,omitempty"`
	RecordingID string `json:"recording_id,omitempty"`
}

func toEventResponse(ev *epg.Event) *eventResponse {
	if ev == nil {
		return nil
	}
	out := &eventResponse{Event: *ev}
	if t := ev.Timer(); t != nil {
		out.TimerID = t.ID
	}
	if r := ev.Recording(); r != nil {
		out.RecordingID = r.ID
	}
	return out
}

func toEventResponses(events []*epg.Event) []*eventResponse {
	out := make([]*eventResponse, len(events))
	for i, ev := range events {
		out[i] = toEventResponse(ev)
	}
	return out
}

type channelSummary struct {
	UID        string     `json:"uid"`
	TableID    int64      `json:"table_id"`
	Name       string     `json:"name"`
	IsRadio    bool       `json:"is_radio"`
	Events     int        `json:"events"`
	FirstStart *time.Time `json:"first_start,omitempty"`
	LastEnd    *time.Time `json:"last_end,omitempty"`
	Loaded     bool       `json:"loaded"`
	Playing    bool       `json:"playing"`
}

type nowNextResponse struct {
	ChannelUID string         `json:"channel_uid"`
	Now        *eventResponse `json:"now"`
	Next       *eventResponse `json:"next"`
}

type healthResponse struct {
	Status         string  `json:"status"`
	Version        string  `json:"version"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Tables         int     `json:"tables"`
	PlayingChannel string  `json:"playing_channel,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Health reports liveness and a few registry counters.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	playing, _ := h.registry.PlayingChannel()
	respondData(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		Version:        h.version,
		UptimeSeconds:  time.Since(h.started).Seconds(),
		Tables:         len(h.registry.Tables()),
		PlayingChannel: playing,
	})
}

// ListChannels returns a summary of every table.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	playing, _ := h.registry.PlayingChannel()
	tables := h.registry.Tables()
	out := make([]channelSummary, 0, len(tables))
	for _, t := range tables {
		info := t.Info()
		out = append(out, channelSummary{
			UID:        info.ChannelUID,
			TableID:    info.ID,
			Name:       info.Name,
			IsRadio:    info.IsRadio,
			Events:     t.Len(),
			FirstStart: timePtr(t.FirstStart()),
			LastEnd:    timePtr(t.LastEnd()),
			Loaded:     t.IsLoaded(),
			Playing:    info.ChannelUID == playing,
		})
	}
	respondList(w, out)
}

// table resolves {uid} or writes a 404.
func (h *Handler) table(w http.ResponseWriter, r *http.Request) (*epg.Table, bool) {
	uid := chi.URLParam(r, "uid")
	t, ok := h.registry.Get(uid)
	if !ok {
		respondError(w, http.StatusNotFound, CodeNotFound, "Channel not found", nil)
		return nil, false
	}
	return t, true
}

// NowNext returns the event on air and the one after it.
func (h *Handler) NowNext(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, nowNextResponse{
		ChannelUID: t.ChannelUID(),
		Now:        toEventResponse(t.GetTagNow(true)),
		Next:       toEventResponse(t.GetTagNext()),
	})
}

func parseTimeParam(r *http.Request, key string) (time.Time, bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts.UTC(), true, nil
}

// ListEvents returns the events starting in [from, to], or every event when
// neither bound is given.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}

	from, hasFrom, err := parseTimeParam(r, "from")
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "from must be an RFC3339 timestamp", nil)
		return
	}
	to, hasTo, err := parseTimeParam(r, "to")
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "to must be an RFC3339 timestamp", nil)
		return
	}

	if !hasFrom && !hasTo {
		respondList(w, toEventResponses(t.Get()))
		return
	}
	if !hasTo {
		to = from.AddDate(100, 0, 0)
	}
	if to.Before(from) {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "to must not be before from", nil)
		return
	}
	respondList(w, toEventResponses(t.GetTagsBetween(from, to)))
}

// GetEvent returns one event by broadcast id.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "broadcastID"), 10, 64)
	if err != nil || id == epg.InvalidBroadcastID {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "broadcastID must be a non-zero integer", nil)
		return
	}
	ev := t.GetTagByBroadcastID(id)
	if ev == nil {
		respondError(w, http.StatusNotFound, CodeNotFound, "Event not found", nil)
		return
	}
	respondData(w, http.StatusOK, toEventResponse(ev))
}

// ForceUpdate fetches the channel from the backend now.
func (h *Handler) ForceUpdate(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	ctx, cancel := context.WithTimeout(r.Context(), h.updateTimeout)
	defer cancel()

	err := h.registry.Update(ctx, uid)
	switch {
	case errors.Is(err, epg.ErrTableNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound, "Channel not found", nil)
		return
	case err != nil:
		respondError(w, http.StatusBadGateway, CodeBackendError, "Update failed", err)
		return
	}

	events := 0
	if t, ok := h.registry.Get(uid); ok {
		events = t.Len()
	}
	logging.Ctx(r.Context()).Info().Str("channel_uid", sanitizeLogValue(uid)).Int("events", events).Msg("Forced EPG update")
	respondData(w, http.StatusOK, map[string]any{"channel_uid": uid, "events": events})
}
