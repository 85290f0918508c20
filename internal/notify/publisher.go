// Package notify publishes room lifecycle and match events for downstream
// consumers. Publishing is best-effort: callers log failures and move on.
package notify

import (
	"context"

	"github.com/mcoot/arcaderooms/internal/model"
)

// Publisher emits lifecycle events
type Publisher interface {
	Publish(ctx context.Context, event model.LifecycleEvent) error
	Close() error
}

// Noop discards every event. It is used when no event bus is configured.
type Noop struct{}

// Ensure Noop implements Publisher
var _ Publisher = Noop{}

func (Noop) Publish(context.Context, model.LifecycleEvent) error { return nil }

func (Noop) Close() error { return nil }
