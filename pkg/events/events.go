// Package events defines raw activity events and the platform payloads they
// carry.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/tracks/pkg/tags"
)

// Event is one captured activity sample as stored in the raw event log.
type Event struct {
	ID         string
	Timestamp  time.Time
	Duration   time.Duration
	DataType   string
	Data       json.RawMessage
	InsertedAt time.Time
}

// Payload decodes the event's data according to its data type.
func (e *Event) Payload() (Payload, error) {
	return Decode(e.DataType, e.Data)
}

// IntrinsicTags decodes the payload and returns its intrinsic tags.
func (e *Event) IntrinsicTags() (*tags.Tags, error) {
	p, err := e.Payload()
	if err != nil {
		return nil, fmt.Errorf("decoding event %s: %w", e.ID, err)
	}
	return p.IntrinsicTags(), nil
}

// End returns the instant the sample stops covering.
func (e *Event) End() time.Time {
	return e.Timestamp.Add(e.Duration)
}

// Record is the line format accepted by ingestion: one JSON object per line.
type Record struct {
	ID         string          `json:"id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	DurationMS int64           `json:"duration_ms"`
	DataType   string          `json:"data_type"`
	Data       json.RawMessage `json:"data"`
}

// ToEvent validates the record and converts it to an Event. Records without
// an id get a random one.
func (r Record) ToEvent() (*Event, error) {
	if r.Timestamp.IsZero() {
		return nil, errors.New("record has no timestamp")
	}
	if r.DurationMS < 0 {
		return nil, fmt.Errorf("record has negative duration %d", r.DurationMS)
	}
	if _, err := Decode(r.DataType, r.Data); err != nil {
		return nil, err
	}

	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Event{
		ID:        id,
		Timestamp: r.Timestamp.UTC(),
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
		DataType:  r.DataType,
		Data:      r.Data,
	}, nil
}
