// Package publisher sends digest events to NATS.
package publisher

import (
	"context"
	"fmt"

	"github.com/blockedby/tg-digest/internal/digest"
)

// SubjectRunCompleted receives one event per finished run.
const SubjectRunCompleted = "telegram.digest.completed"

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(ctx context.Context, subject string, data any) error
}

// NATSPublisher implements digest.EventPublisher
type NATSPublisher struct {
	js NATSClient
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(js NATSClient) *NATSPublisher {
	return &NATSPublisher{js: js}
}

// PublishRunCompleted publishes a run completed event
func (p *NATSPublisher) PublishRunCompleted(ctx context.Context, event digest.RunCompletedEvent) error {
	if err := p.js.Publish(ctx, SubjectRunCompleted, event); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
