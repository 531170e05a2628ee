// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

//go:build !nats

package push

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the binary was built without NATS support.
var ErrUnavailable = errors.New("NATS subscriber not available: build with -tags=nats")

// Subscriber is a stub when NATS dependencies are not compiled in.
type Subscriber struct{}

// NewSubscriber returns ErrUnavailable.
func NewSubscriber(*SubscriberConfig, *Dispatcher) (*Subscriber, error) {
	return nil, ErrUnavailable
}

// Run returns ErrUnavailable.
func (s *Subscriber) Run(context.Context) error {
	return ErrUnavailable
}

// Close is a no-op.
func (s *Subscriber) Close() error {
	return nil
}
