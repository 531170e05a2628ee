// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/tvguide/internal/epg"
)

// CodeUnavailable is returned when the cross-reference index is disabled.
const CodeUnavailable = "UNAVAILABLE"

type playingRequest struct {
	ChannelUID string `json:"channel_uid" validate:"required,max=256"`
}

// SetPlaying marks the channel being watched.
func (h *Handler) SetPlaying(w http.ResponseWriter, r *http.Request) {
	var req playingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, ok := h.registry.Get(req.ChannelUID); !ok {
		respondError(w, http.StatusNotFound, CodeNotFound, "Channel not found", nil)
		return
	}
	h.registry.SetPlayingChannel(req.ChannelUID)
	respondData(w, http.StatusOK, req)
}

// ClearPlaying forgets the playing channel.
func (h *Handler) ClearPlaying(w http.ResponseWriter, r *http.Request) {
	h.registry.ClearPlayingChannel()
	respondData(w, http.StatusOK, playingRequest{})
}

func (h *Handler) requireXref(w http.ResponseWriter) bool {
	if h.xref == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "Timer and recording index is disabled", nil)
		return false
	}
	return true
}

func (h *Handler) refresh(channelUIDs ...string) {
	for _, uid := range channelUIDs {
		h.registry.RefreshCrossReferences(uid)
	}
}

// ListTimers returns every known timer.
func (h *Handler) ListTimers(w http.ResponseWriter, r *http.Request) {
	if !h.requireXref(w) {
		return
	}
	respondList(w, h.xref.Timers())
}

// PutTimer creates or replaces a timer and re-resolves the affected channels.
func (h *Handler) PutTimer(w http.ResponseWriter, r *http.Request) {
	if !h.requireXref(w) {
		return
	}
	var t epg.Timer
	if !decodeBody(w, r, &t) {
		return
	}
	t.Start, t.End = t.Start.UTC(), t.End.UTC()
	h.refresh(h.xref.PutTimer(t)...)
	respondData(w, http.StatusOK, t)
}

// DeleteTimer removes a timer.
func (h *Handler) DeleteTimer(w http.ResponseWriter, r *http.Request) {
	if !h.requireXref(w) {
		return
	}
	id := chi.URLParam(r, "id")
	uid, ok := h.xref.RemoveTimer(id)
	if !ok {
		respondError(w, http.StatusNotFound, CodeNotFound, "Timer not found", nil)
		return
	}
	h.refresh(uid)
	respondData(w, http.StatusOK, map[string]string{"id": id})
}

// ListRecordings returns every known recording.
func (h *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	if !h.requireXref(w) {
		return
	}
	respondList(w, h.xref.Recordings())
}

// PutRecording creates or replaces a recording.
func (h *Handler) PutRecording(w http.ResponseWriter, r *http.Request) {
	if !h.requireXref(w) {
		return
	}
	var rec epg.Recording
	if !decodeBody(w, r, &rec) {
		return
	}
	rec.Start = rec.Start.UTC()
	h.refresh(h.xref.PutRecording(rec)...)
	respondData(w, http.StatusOK, rec)
}

// DeleteRecording removes a recording.
func (h *Handler) DeleteRecording(w http.ResponseWriter, r *http.Request) {
	if !h.requireXref(w) {
		return
	}
	id := chi.URLParam(r, "id")
	uid, ok := h.xref.RemoveRecording(id)
	if !ok {
		respondError(w, http.StatusNotFound, CodeNotFound, "Recording not found", nil)
		return
	}
	h.refresh(uid)
	respondData(w, http.StatusOK, map[string]string{"id": id})
}
