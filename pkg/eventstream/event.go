package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDayExtracted is emitted after a UTC day's tags are re-derived.
	EventTypeDayExtracted = "tracks.day.extracted"
)

// DayExtractedEvent is a transport-neutral event payload for a re-derived day.
type DayExtractedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// Day is the UTC calendar day, formatted YYYY-MM-DD.
	Day         string    `json:"day"`
	ExtractedAt time.Time `json:"extracted_at"`
	Events      int       `json:"events"`
	Rows        int       `json:"rows"`
	DurationMs  int64     `json:"duration_ms"`
}

// NewDayExtractedEvent fills in the envelope fields.
func NewDayExtractedEvent(day string, extractedAt time.Time, events, rows int, took time.Duration) *DayExtractedEvent {
	return &DayExtractedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeDayExtracted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Day:           day,
		ExtractedAt:   extractedAt.UTC(),
		Events:        events,
		Rows:          rows,
		DurationMs:    took.Milliseconds(),
	}
}
