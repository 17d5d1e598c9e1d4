package service

import (
	"context"

	"exeat/internal/model"
)

// EventPublisher receives committed request changes. Publish must not block
// the caller and must not fail the operation that produced the event.
type EventPublisher interface {
	Publish(ev model.ExeatEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(model.ExeatEvent) {}

// NoopPublisher discards events.
func NoopPublisher() EventPublisher {
	return noopPublisher{}
}

// ConsentChecker reports whether a consent document reference resolves to a
// stored document.
type ConsentChecker interface {
	Exists(ctx context.Context, ref string) (bool, error)
}
