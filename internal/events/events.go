// Package events carries pipeline events between processes over NATS
// JetStream and fans them out to in-process sinks.
package events

import (
	"context"
	"errors"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

const (
	StreamName = "FACETAG"

	SubjectBase           = "facetag"
	SubjectPhotoProcessed = SubjectBase + "." + domain.EventPhotoProcessed
	SubjectProfileUpdated = SubjectBase + "." + domain.EventProfileUpdated
)

// Sink receives pipeline events. The services, the websocket hub and the
// JetStream publisher all speak it.
type Sink interface {
	PublishPhotoProcessed(ctx context.Context, event domain.PhotoProcessedEvent) error
	PublishProfileUpdated(ctx context.Context, event domain.ProfileUpdatedEvent) error
}

// Nop drops every event. Used when NATS_URL is unset.
type Nop struct{}

func (Nop) PublishPhotoProcessed(context.Context, domain.PhotoProcessedEvent) error { return nil }
func (Nop) PublishProfileUpdated(context.Context, domain.ProfileUpdatedEvent) error { return nil }

// Multi delivers each event to every sink, in order, and joins their errors.
type Multi []Sink

func (m Multi) PublishPhotoProcessed(ctx context.Context, event domain.PhotoProcessedEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishPhotoProcessed(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PublishProfileUpdated(ctx context.Context, event domain.ProfileUpdatedEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishProfileUpdated(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
