package eventstream

import "context"

// Publisher publishes extraction events to an event stream backend.
type Publisher interface {
	PublishDayExtracted(ctx context.Context, event *DayExtractedEvent) error
	Close() error
}
