// Package storage defines the persistence interfaces of tracks: the raw event
// log, the fetch cache, persisted rule groups and the per-day extraction
// cache.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/tracks/pkg/events"
	"github.com/papercomputeco/tracks/pkg/rules"
)

// DayLayout formats UTC calendar days.
const DayLayout = "2006-01-02"

// Day returns the UTC calendar day t falls on.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// Cursor is a keyset position in (timestamp, id) order.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// EventQuery selects raw events with From <= timestamp < To.
type EventQuery struct {
	From time.Time
	To   time.Time

	// After resumes a listing strictly past this position in the listing's
	// direction.
	After *Cursor

	// Limit caps the number of events returned. Zero means no limit.
	Limit int

	// Desc lists newest first.
	Desc bool
}

// EventSource is the read side of the raw event log.
type EventSource interface {
	// ListEvents returns events ordered by (timestamp, id).
	ListEvents(ctx context.Context, q EventQuery) ([]*events.Event, error)

	// GetEvent returns a single event or NotFoundError.
	GetEvent(ctx context.Context, id string) (*events.Event, error)
}

// EventSink is the write side of the raw event log.
type EventSink interface {
	// InsertEvents stores events, ignoring ids that already exist, and bumps
	// the raw-events-changed timestamp of every UTC day an inserted event
	// starts on. The timestamp becomes changedAt or later: it always
	// increases and never ends up before the day's last extraction. It
	// returns how many events were new.
	InsertEvents(ctx context.Context, evs []*events.Event, changedAt time.Time) (int, error)
}

// FetchCacheStore persists opaque fetch cache values.
type FetchCacheStore interface {
	// GetFetchCache returns the stored value or NotFoundError.
	GetFetchCache(ctx context.Context, key string) ([]byte, error)

	// PutFetchCache inserts or replaces the value for key.
	PutFetchCache(ctx context.Context, key string, at time.Time, value []byte) error
}

// RuleGroupStore persists user-defined rule groups.
type RuleGroupStore interface {
	// ListRuleGroups returns persisted groups ordered by global id.
	ListRuleGroups(ctx context.Context) ([]rules.TagRuleGroup, error)

	// UpsertRuleGroup inserts or replaces a group by global id.
	UpsertRuleGroup(ctx context.Context, g rules.TagRuleGroup) error
}

// Currency records when a UTC day was last extracted and when its raw
// events last changed. A zero Extracted means never extracted.
type Currency struct {
	Day        string
	Extracted  time.Time
	RawChanged time.Time
}

// Fresh reports whether the day's materialized rows are current.
func (c Currency) Fresh() bool {
	return !c.Extracted.IsZero() && c.Extracted.After(c.RawChanged)
}

// Unchanged reports whether a day's currency record still matches seen, the
// record read before derivation started. found and rawChanged describe the
// record as stored now; a nil seen means no record existed.
func Unchanged(seen *Currency, found bool, rawChanged time.Time) bool {
	if seen == nil {
		return !found
	}
	return found && seen.RawChanged.Equal(rawChanged)
}

// ExtractedRow is one materialized (event, tag, value) triple.
type ExtractedRow struct {
	ID        int64
	Timestamp time.Time
	EventID   string
	Tag       string
	Value     string
	Duration  time.Duration
}

// ExtractedStore persists the day-granular extraction cache.
type ExtractedStore interface {
	// GetCurrency returns the currency records of the given days. Days
	// without a record are absent from the result.
	GetCurrency(ctx context.Context, days []string) (map[string]Currency, error)

	// ReplaceDay atomically deletes the rows in [from, to) and inserts rows
	// in order. It marks day as extracted at extractedAt and returns true
	// only when the day's currency record still matches seen (nil when the
	// day had no record); otherwise raw events arrived during derivation and
	// the day stays stale.
	ReplaceDay(ctx context.Context, day string, from, to time.Time, rows []ExtractedRow, extractedAt time.Time, seen *Currency) (bool, error)

	// ListExtracted returns rows with From <= timestamp < To in insertion
	// order.
	ListExtracted(ctx context.Context, from, to time.Time) ([]ExtractedRow, error)

	// ListExtractedForEvent returns the rows of one event in insertion order.
	ListExtractedForEvent(ctx context.Context, eventID string) ([]ExtractedRow, error)

	// InvalidateAll marks every recorded day as changed at at.
	InvalidateAll(ctx context.Context, at time.Time) error
}

// Driver is a complete storage backend.
type Driver interface {
	EventSource
	EventSink
	FetchCacheStore
	RuleGroupStore
	ExtractedStore

	// Close closes the store and releases any resources.
	Close() error
}
