// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

/*
Package backend fetches raw EPG data from the PVR backend over HTTP/JSON.

Endpoints:
  - GET {url}/channels                                 -> {"channels": [...]}
  - GET {url}/channels/{uid}/events?start=..&end=..    -> {"events": [...]}

start and end are UTC unix seconds. The API key, when configured, is sent in
the X-API-Key header.

Every request waits on a token bucket limiter and is retried on transient
failures (network errors, HTTP 429 and 5xx). CircuitBreakerClient adds a
circuit breaker on top so a dead backend is not hammered by every sweep.
*/
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tvguide/internal/epg"
	"github.com/tomtom215/tvguide/internal/logging"
	"github.com/tomtom215/tvguide/internal/metrics"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Config configures a Client.
type Config struct {
	URL               string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	RetryAttempts     uint
	RetryDelay        time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   uint
	delay      time.Duration
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		attempts:   attempts,
		delay:      cfg.RetryDelay,
	}, nil
}

type eventsResponse struct {
	Events []*epg.Event `json:"events"`
}

type channelsResponse struct {
	Channels []epg.Channel `json:"channels"`
}

// FetchEvents returns the events of ch overlapping [start, end).
func (c *Client) FetchEvents(ctx context.Context, ch epg.Channel, start, end time.Time) ([]*epg.Event, error) {
	query := url.Values{}
	query.Set("start", strconv.FormatInt(start.Unix(), 10))
	query.Set("end", strconv.FormatInt(end.Unix(), 10))
	if ch.ClientID != 0 {
		query.Set("client_id", strconv.Itoa(ch.ClientID))
	}
	path := "/channels/" + url.PathEscape(ch.UID) + "/events"

	var resp eventsResponse
	if err := c.get(ctx, "fetch_events", path, query, &resp); err != nil {
		return nil, err
	}

	events := resp.Events[:0]
	for _, ev := range resp.Events {
		if ev == nil {
			continue
		}
		ev.Start, ev.End = ev.Start.UTC(), ev.End.UTC()
		events = append(events, ev)
	}
	logging.Debug().Str("channel_uid", ch.UID).Int("events", len(events)).Msg("Fetched backend events")
	return events, nil
}

// ListChannels returns the channels the backend offers.
func (c *Client) ListChannels(ctx context.Context) ([]epg.Channel, error) {
	var resp channelsResponse
	if err := c.get(ctx, "list_channels", "/channels", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// get performs a rate limited, retried GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, operation, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	body, err := retry.DoWithData(
		func() ([]byte, error) {
			return c.do(ctx, operation, reqURL)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			logging.Warn().Err(err).Str("operation", operation).Uint("attempt", n+1).Msg("Backend request failed, retrying")
		}),
	)
	if err != nil {
		return fmt.Errorf("backend %s: %w", operation, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend %s: failed to decode response: %w", operation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, operation, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, retry.Unrecoverable(err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request failed: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordBackendFetch(operation, 0, time.Since(start), err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		metrics.RecordBackendFetch(operation, resp.StatusCode, time.Since(start), statusErr)
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	metrics.RecordBackendFetch(operation, resp.StatusCode, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	return body, nil
}

// isTransient reports whether err is worth another attempt.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
