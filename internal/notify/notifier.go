// Package notify fans ingestion events out to real-time subscribers.
package notify

import (
	"context"
	"errors"
)

// Notifier receives "messageCreated" and "statusChanged" events. Delivery is
// best effort: a returned error is for logging only and never fails ingestion.
type Notifier interface {
	Notify(ctx context.Context, event string, payload any) error
}

// Multi delivers every event to all sinks, collecting their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event string, payload any) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, string, any) error { return nil }

// Func adapts a function to Notifier.
type Func func(ctx context.Context, event string, payload any) error

func (f Func) Notify(ctx context.Context, event string, payload any) error {
	return f(ctx, event, payload)
}
