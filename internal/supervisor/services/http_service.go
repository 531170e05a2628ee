// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/tvguide/internal/logging"
)

// HTTPServer is the part of *http.Server the wrapper needs.
//
// Satisfied by *http.Server from net/http:
//   - ListenAndServe() error
//   - Shutdown(ctx context.Context) error
//
// Tests substitute a mock that blocks in ListenAndServe until Shutdown.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the guide API server under supervision.
//
// The wrapper translates the blocking ListenAndServe pattern into suture's
// context-aware Serve:
//
//  1. ListenAndServe runs in a goroutine
//  2. Serve waits for cancellation or a server error
//  3. On cancellation Shutdown drains open requests for shutdownTimeout
//
// A listen failure (port in use, permission denied) is returned as an error
// and the api layer restarts the service with backoff.
//
// Example usage:
//
//	server := &http.Server{Addr: ":8089", Handler: router}
//	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService creates the wrapper.
//
// shutdownTimeout bounds how long open requests may run once shutdown
// starts. A non-positive value means 10s. cmd/tvguide passes
// SUPERVISOR_SHUTDOWN_TIMEOUT.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// Serve implements suture.Service.
//
// This method:
//  1. Starts ListenAndServe in a goroutine
//  2. Waits for ctx to be canceled or the server to fail
//  3. On cancellation calls Shutdown on a fresh context bounded by the
//     shutdown timeout, then waits for ListenAndServe to return
//
// It returns ctx.Err() after a graceful shutdown, a wrapped error if the
// server fails or Shutdown times out, and nil if the server was closed from
// elsewhere. http.ErrServerClosed is never reported as a failure.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		err := h.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// ctx is already done; drain on a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-serveErr
		logging.Info().Msg("HTTP server stopped")
		return ctx.Err()
	}
}

// String implements fmt.Stringer for logging.
func (h *HTTPServerService) String() string {
	return h.name
}
