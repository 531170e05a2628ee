// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/xref"
)

var now = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu     sync.Mutex
	events []*epg.Event
	err    error
}

func (b *fakeBackend) FetchEvents(context.Context, epg.Channel, time.Time, time.Time) ([]*epg.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	out := make([]*epg.Event, len(b.events))
	for i, e := range b.events {
		c := *e
		out[i] = &c
	}
	return out, nil
}

type testEnv struct {
	registry *epg.Registry
	index    *xref.Index
	backend  *fakeBackend
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	opts := epg.DefaultOptions()
	opts.IgnoreDatabase = true
	opts.Clock = func() time.Time { return now }

	index := xref.NewIndex()
	backend := &fakeBackend{}
	reg := epg.NewRegistry(epg.Dependencies{Backend: backend, Resolver: index}, opts)

	tbl := reg.GetOrCreate(epg.Channel{UID: "ch1", Name: "One"})
	tbl.UpdateEntry(&epg.Event{BroadcastID: 1, Start: now.Add(-30 * time.Minute), End: now.Add(30 * time.Minute), Title: "News"}, false)
	tbl.UpdateEntry(&epg.Event{BroadcastID: 2, Start: now.Add(30 * time.Minute), End: now.Add(90 * time.Minute), Title: "Film"}, false)
	tbl.UpdateEntry(&epg.Event{BroadcastID: 3, Start: now.Add(90 * time.Minute), End: now.Add(150 * time.Minute), Title: "Late"}, false)
	reg.GetOrCreate(epg.Channel{UID: "radio", Name: "Radio", IsRadio: true})

	return &testEnv{
		registry: reg,
		index:    index,
		backend:  backend,
		router:   NewRouter(NewHandler(reg, index, "test"), RouterConfig{}),
	}
}

type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata struct {
		Timestamp time.Time `json:"timestamp"`
		Count     *int      `json:"count"`
	} `json:"metadata"`
	Error *APIError `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON body %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	code, resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	if code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("health = %d %s", code, resp.Status)
	}
	h := decodeData[healthResponse](t, resp)
	if h.Tables != 2 || h.Version != "test" {
		t.Errorf("health = %+v", h)
	}
	if resp.Metadata.Timestamp.IsZero() {
		t.Error("metadata.timestamp missing")
	}
}

func TestListChannels(t *testing.T) {
	env := newTestEnv(t)
	code, resp := env.do(t, http.MethodGet, "/api/v1/channels", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	channels := decodeData[[]channelSummary](t, resp)
	if len(channels) != 2 || resp.Metadata.Count == nil || *resp.Metadata.Count != 2 {
		t.Fatalf("channels = %+v", channels)
	}
	if channels[0].UID != "ch1" || channels[0].Events != 3 {
		t.Errorf("first channel = %+v", channels[0])
	}
	if channels[1].UID != "radio" || !channels[1].IsRadio || channels[1].FirstStart != nil {
		t.Errorf("second channel = %+v", channels[1])
	}
}

func TestNowNext(t *testing.T) {
	env := newTestEnv(t)
	code, resp := env.do(t, http.MethodGet, "/api/v1/channels/ch1/now", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	nn := decodeData[nowNextResponse](t, resp)
	if nn.Now == nil || nn.Now.Title != "News" {
		t.Errorf("now = %+v", nn.Now)
	}
	if nn.Next == nil || nn.Next.Title != "Film" {
		t.Errorf("next = %+v", nn.Next)
	}

	code, resp = env.do(t, http.MethodGet, "/api/v1/channels/nope/now", "")
	if code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Errorf("unknown channel = %d %+v", code, resp.Error)
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
	}{
		{name: "all", query: "", wantCode: http.StatusOK, wantCount: 3},
		{name: "window", query: "?from=2026-03-01T20:00:00Z&to=2026-03-01T21:00:00Z", wantCode: http.StatusOK, wantCount: 1},
		{name: "open end", query: "?from=2026-03-01T20:00:00Z", wantCode: http.StatusOK, wantCount: 2},
		{name: "open start", query: "?to=2026-03-01T20:00:00Z", wantCode: http.StatusOK, wantCount: 1},
		{name: "bad from", query: "?from=yesterday", wantCode: http.StatusBadRequest},
		{name: "reversed", query: "?from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := env.do(t, http.MethodGet, "/api/v1/channels/ch1/events"+tt.query, "")
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%+v)", code, tt.wantCode, resp.Error)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			events := decodeData[[]eventResponse](t, resp)
			if len(events) != tt.wantCount {
				t.Errorf("events = %d, want %d", len(events), tt.wantCount)
			}
		})
	}
}

func TestGetEvent(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodGet, "/api/v1/channels/ch1/events/2", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if ev := decodeData[eventResponse](t, resp); ev.Title != "Film" || ev.BroadcastID != 2 {
		t.Errorf("event = %+v", ev)
	}

	if code, _ := env.do(t, http.MethodGet, "/api/v1/channels/ch1/events/99", ""); code != http.StatusNotFound {
		t.Errorf("missing event status = %d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/api/v1/channels/ch1/events/abc", ""); code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/api/v1/channels/ch1/events/0", ""); code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d", code)
	}
}

func TestForceUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.backend.events = []*epg.Event{
		{BroadcastID: 10, Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour), Title: "New"},
	}

	code, resp := env.do(t, http.MethodPost, "/api/v1/channels/ch1/update", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d %+v", code, resp.Error)
	}
	tbl, _ := env.registry.Get("ch1")
	if tbl.GetTagByBroadcastID(10) == nil {
		t.Error("fetched event not merged")
	}

	if code, _ := env.do(t, http.MethodPost, "/api/v1/channels/nope/update", ""); code != http.StatusNotFound {
		t.Errorf("unknown channel status = %d", code)
	}

	env.backend.mu.Lock()
	env.backend.err = errors.New("backend down")
	env.backend.mu.Unlock()
	code, resp = env.do(t, http.MethodPost, "/api/v1/channels/ch1/update", "")
	if code != http.StatusBadGateway || resp.Error.Code != CodeBackendError {
		t.Errorf("backend failure = %d %+v", code, resp.Error)
	}
}

func TestPlaying(t *testing.T) {
	env := newTestEnv(t)

	if code, _ := env.do(t, http.MethodPut, "/api/v1/playing", `{"channel_uid":"ch1"}`); code != http.StatusOK {
		t.Fatalf("set playing status = %d", code)
	}
	if uid, ok := env.registry.PlayingChannel(); !ok || uid != "ch1" {
		t.Errorf("playing = %q, %v", uid, ok)
	}

	code, resp := env.do(t, http.MethodPut, "/api/v1/playing", `{}`)
	if code != http.StatusBadRequest || resp.Error.Code != CodeValidation {
		t.Errorf("empty body = %d %+v", code, resp.Error)
	}
	if code, _ := env.do(t, http.MethodPut, "/api/v1/playing", `{"channel_uid":"nope"}`); code != http.StatusNotFound {
		t.Errorf("unknown channel status = %d", code)
	}
	if code, _ := env.do(t, http.MethodPut, "/api/v1/playing", `not json`); code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", code)
	}

	if code, _ := env.do(t, http.MethodDelete, "/api/v1/playing", ""); code != http.StatusOK {
		t.Errorf("clear playing status = %d", code)
	}
	if _, ok := env.registry.PlayingChannel(); ok {
		t.Error("playing channel not cleared")
	}
}

func TestTimers(t *testing.T) {
	env := newTestEnv(t)
	tbl, _ := env.registry.Get("ch1")

	body := `{"id":"t1","channel_uid":"ch1","broadcast_id":2,"start":"2026-03-01T20:30:00Z","end":"2026-03-01T21:30:00Z","title":"Film"}`
	if code, resp := env.do(t, http.MethodPut, "/api/v1/timers", body); code != http.StatusOK {
		t.Fatalf("put timer = %d %+v", code, resp.Error)
	}
	if ev := tbl.GetTagByBroadcastID(2); ev == nil || !ev.HasTimer() || ev.Timer().ID != "t1" {
		t.Fatalf("event 2 timer not resolved: %+v", ev)
	}

	code, resp := env.do(t, http.MethodGet, "/api/v1/channels/ch1/events/2", "")
	if code != http.StatusOK || decodeData[eventResponse](t, resp).TimerID != "t1" {
		t.Errorf("event response missing timer id")
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/timers", "")
	if timers := decodeData[[]epg.Timer](t, resp); len(timers) != 1 {
		t.Errorf("timers = %+v", timers)
	}

	invalid := `{"id":"t2","channel_uid":"ch1","start":"2026-03-01T21:30:00Z","end":"2026-03-01T20:30:00Z"}`
	code, resp = env.do(t, http.MethodPut, "/api/v1/timers", invalid)
	if code != http.StatusBadRequest || !strings.Contains(resp.Error.Message, "end") {
		t.Errorf("invalid timer = %d %+v", code, resp.Error)
	}

	if code, _ := env.do(t, http.MethodDelete, "/api/v1/timers/t1", ""); code != http.StatusOK {
		t.Fatalf("delete timer status = %d", code)
	}
	if ev := tbl.GetTagByBroadcastID(2); ev.HasTimer() {
		t.Error("timer still attached after delete")
	}
	if code, _ := env.do(t, http.MethodDelete, "/api/v1/timers/t1", ""); code != http.StatusNotFound {
		t.Errorf("second delete status = %d", code)
	}
}

func TestRecordings(t *testing.T) {
	env := newTestEnv(t)
	tbl, _ := env.registry.Get("ch1")

	body := `{"id":"r1","channel_uid":"ch1","start":"2026-03-01T19:30:00Z","title":"News","path":"/rec/news.ts"}`
	if code, resp := env.do(t, http.MethodPut, "/api/v1/recordings", body); code != http.StatusOK {
		t.Fatalf("put recording = %d %+v", code, resp.Error)
	}
	if ev := tbl.GetTagByBroadcastID(1); ev == nil || !ev.HasRecording() {
		t.Fatal("recording not matched by start time")
	}

	_, resp := env.do(t, http.MethodGet, "/api/v1/recordings", "")
	if recs := decodeData[[]epg.Recording](t, resp); len(recs) != 1 || recs[0].Path != "/rec/news.ts" {
		t.Errorf("recordings = %+v", recs)
	}

	if code, _ := env.do(t, http.MethodDelete, "/api/v1/recordings/r1", ""); code != http.StatusOK {
		t.Fatalf("delete recording status = %d", code)
	}
	if ev := tbl.GetTagByBroadcastID(1); ev.HasRecording() {
		t.Error("recording still attached after delete")
	}
}

func TestXrefDisabled(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(NewHandler(env.registry, nil, "test"), RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRouting(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodGet, "/api/v1/nope", "")
	if code != http.StatusNotFound || resp.Error == nil {
		t.Errorf("unknown route = %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Errorf("request id header = %q, want req-123", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Errorf("/metrics = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(NewHandler(env.registry, env.index, "test"), RouterConfig{
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
	})

	var last int
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", last)
	}
}
