package nop

import (
	"context"

	"github.com/papercomputeco/tracks/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishDayExtracted validates input and otherwise does nothing.
func (p *Publisher) PublishDayExtracted(_ context.Context, event *eventstream.DayExtractedEvent) error {
	if event == nil {
		return eventstream.ErrNilDayEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
