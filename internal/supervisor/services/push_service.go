// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package services

import (
	"context"
	"errors"
	"fmt"
)

// PushRunner matches the push subscriber lifecycle.
//
// Satisfied by *push.Subscriber.
type PushRunner interface {
	Run(ctx context.Context) error
	Close() error
}

// PushService wraps the push subscriber as a supervised service.
//
// Run consumes messages until ctx is canceled; Close releases the NATS
// connection afterwards. A subscriber that ends on its own is restarted.
type PushService struct {
	subscriber PushRunner
	name       string
}

// NewPushService creates the wrapper.
func NewPushService(subscriber PushRunner) *PushService {
	return &PushService{subscriber: subscriber, name: "push-subscriber"}
}

// Serve implements suture.Service.
//
// When ctx is canceled the subscriber is closed and ctx.Err() is returned.
// A subscriber that returns while ctx is still live is reported as a
// failure, with or without an error, so suture reconnects it.
func (p *PushService) Serve(ctx context.Context) error {
	err := p.subscriber.Run(ctx)
	if ctx.Err() != nil {
		if cerr := p.subscriber.Close(); cerr != nil {
			return fmt.Errorf("push subscriber close failed: %w", cerr)
		}
		return ctx.Err()
	}
	if err == nil {
		return errors.New("push subscriber stopped unexpectedly")
	}
	return fmt.Errorf("push subscriber failed: %w", err)
}

// String implements fmt.Stringer for logging.
func (p *PushService) String() string {
	return p.name
}

