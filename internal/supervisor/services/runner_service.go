// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package services

import (
	"context"
)

// ContextRunner is a loop that runs until its context is canceled.
//
// Satisfied by *scanner.Scanner and *scanner.Flusher.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService wraps a ContextRunner as a supervised service.
//
// The runner owns its loop, including any final work after cancellation
// (the flusher writes one last batch). Serve passes its result through, so
// a runner returning ctx.Err() stops cleanly and any other error is a
// crash.
//
// Example usage:
//
//	s := scanner.NewScanner(registry, channels, cfg, logger)
//	tree.AddIngestService(services.NewRunnerService("epg-scanner", s))
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewRunnerService creates a wrapper named name.
func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (r *RunnerService) Serve(ctx context.Context) error {
	return r.runner.RunWithContext(ctx)
}

// String implements fmt.Stringer for logging.
func (r *RunnerService) String() string {
	return r.name
}
