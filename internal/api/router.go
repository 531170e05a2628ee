// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig configures the router middleware.
type RouterConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// RequestTimeout bounds every request. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter wires the handlers into a chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(PrometheusMetrics)
		if cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
		}

		r.Get("/health", h.Health)

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", h.ListChannels)
			r.Route("/{uid}", func(r chi.Router) {
				r.Get("/now", h.NowNext)
				r.Get("/events", h.ListEvents)
				r.Get("/events/{broadcastID}", h.GetEvent)
				r.Post("/update", h.ForceUpdate)
			})
		})

		r.Put("/playing", h.SetPlaying)
		r.Delete("/playing", h.ClearPlaying)

		r.Get("/timers", h.ListTimers)
		r.Put("/timers", h.PutTimer)
		r.Delete("/timers/{id}", h.DeleteTimer)

		r.Get("/recordings", h.ListRecordings)
		r.Put("/recordings", h.PutRecording)
		r.Delete("/recordings/{id}", h.DeleteRecording)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}
