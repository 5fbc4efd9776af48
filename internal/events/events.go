package events

import (
	"context"

	"vetbook/internal/domain"
)

// Sink receives lifecycle events after the corresponding state change is
// durable. Consumers (mailer, visit logbook) subscribe here; the engine never
// waits on them and treats publish failures as non-fatal.
type Sink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// NopSink drops events. Used when no broker is configured and in tests.
type NopSink struct{}

func (NopSink) Publish(ctx context.Context, event domain.Event) error {
	return nil
}
