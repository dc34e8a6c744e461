// Package inmemory provides a map-backed storage driver for tests and
// ephemeral runs.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/tracks/pkg/events"
	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/storage"
)

type cacheEntry struct {
	at    time.Time
	value []byte
}

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every field below
	mu sync.RWMutex

	// events holds raw events sorted by (timestamp, id)
	events []*events.Event
	ids    map[string]*events.Event

	cache map[string]cacheEntry

	// groups holds rule groups JSON encoded so callers never share state
	groups map[string][]byte

	extracted []storage.ExtractedRow
	nextRowID int64
	currency  map[string]storage.Currency
}

var _ storage.Driver = (*Driver)(nil)

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		ids:       make(map[string]*events.Event),
		cache:     make(map[string]cacheEntry),
		groups:    make(map[string][]byte),
		currency:  make(map[string]storage.Currency),
		nextRowID: 1,
	}
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

func less(a, b *events.Event) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

// ListEvents returns events in the query window ordered by (timestamp, id).
func (d *Driver) ListEvents(_ context.Context, q storage.EventQuery) ([]*events.Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var cursor *events.Event
	if q.After != nil {
		cursor = &events.Event{Timestamp: q.After.Timestamp, ID: q.After.ID}
	}

	out := make([]*events.Event, 0)
	visit := func(e *events.Event) bool {
		if !q.From.IsZero() && e.Timestamp.Before(q.From) {
			return true
		}
		if !q.To.IsZero() && !e.Timestamp.Before(q.To) {
			return true
		}
		if cursor != nil {
			if q.Desc && !less(e, cursor) {
				return true
			}
			if !q.Desc && !less(cursor, e) {
				return true
			}
		}
		cp := *e
		out = append(out, &cp)
		return q.Limit <= 0 || len(out) < q.Limit
	}

	if q.Desc {
		for i := len(d.events) - 1; i >= 0; i-- {
			if !visit(d.events[i]) {
				break
			}
		}
	} else {
		for _, e := range d.events {
			if !visit(e) {
				break
			}
		}
	}
	return out, nil
}

// GetEvent returns a single event by id.
func (d *Driver) GetEvent(_ context.Context, id string) (*events.Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.ids[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindEvent, Key: id}
	}
	cp := *e
	return &cp, nil
}

// InsertEvents stores new events and bumps the raw-events-changed timestamp
// of each day they start on.
func (d *Driver) InsertEvents(_ context.Context, evs []*events.Event, changedAt time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inserted := 0
	days := make(map[string]struct{})
	for _, e := range evs {
		if _, dup := d.ids[e.ID]; dup {
			continue
		}
		cp := *e
		cp.Timestamp = e.Timestamp.UTC().Truncate(time.Millisecond)
		cp.InsertedAt = changedAt.UTC().Truncate(time.Millisecond)
		d.ids[cp.ID] = &cp
		d.events = append(d.events, &cp)
		inserted++

		days[storage.Day(cp.Timestamp)] = struct{}{}
	}

	at := changedAt.UTC().Truncate(time.Millisecond)
	for day := range days {
		c, found := d.currency[day]
		changed := at
		if found {
			if next := c.RawChanged.Add(time.Millisecond); next.After(changed) {
				changed = next
			}
			if c.Extracted.After(changed) {
				changed = c.Extracted
			}
		}
		c.Day = day
		c.RawChanged = changed
		d.currency[day] = c
	}

	sort.SliceStable(d.events, func(i, j int) bool { return less(d.events[i], d.events[j]) })
	return inserted, nil
}

// GetFetchCache returns the cached value for key.
func (d *Driver) GetFetchCache(_ context.Context, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.cache[key]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindFetchCache, Key: key}
	}
	return append([]byte(nil), entry.value...), nil
}

// PutFetchCache inserts or replaces the value for key.
func (d *Driver) PutFetchCache(_ context.Context, key string, at time.Time, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache[key] = cacheEntry{at: at, value: append([]byte(nil), value...)}
	return nil
}

// ListRuleGroups returns persisted groups ordered by global id.
func (d *Driver) ListRuleGroups(_ context.Context) ([]rules.TagRuleGroup, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.groups))
	for id := range d.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]rules.TagRuleGroup, 0, len(ids))
	for _, id := range ids {
		g := rules.TagRuleGroup{GlobalID: id}
		if err := json.Unmarshal(d.groups[id], &g.Data); err != nil {
			return nil, fmt.Errorf("failed to decode rule group %s: %w", id, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// UpsertRuleGroup inserts or replaces a group by global id.
func (d *Driver) UpsertRuleGroup(_ context.Context, g rules.TagRuleGroup) error {
	data, err := json.Marshal(g.Data)
	if err != nil {
		return fmt.Errorf("failed to encode rule group %s: %w", g.GlobalID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[g.GlobalID] = data
	return nil
}

// GetCurrency returns the currency records of the given days.
func (d *Driver) GetCurrency(_ context.Context, days []string) (map[string]storage.Currency, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]storage.Currency, len(days))
	for _, day := range days {
		if c, ok := d.currency[day]; ok {
			out[day] = c
		}
	}
	return out, nil
}

// ReplaceDay swaps the materialized rows of a day and records the
// extraction time when the day is unchanged since seen.
func (d *Driver) ReplaceDay(_ context.Context, day string, from, to time.Time, rows []storage.ExtractedRow, extractedAt time.Time, seen *storage.Currency) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.extracted[:0:0]
	for _, r := range d.extracted {
		if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			kept = append(kept, r)
		}
	}
	for _, r := range rows {
		r.ID = d.nextRowID
		d.nextRowID++
		kept = append(kept, r)
	}
	d.extracted = kept

	c, found := d.currency[day]
	if !storage.Unchanged(seen, found, c.RawChanged) {
		return false, nil
	}
	c.Day = day
	c.Extracted = extractedAt.UTC().Truncate(time.Millisecond)
	d.currency[day] = c
	return true, nil
}

// ListExtracted returns rows in [from, to) in insertion order.
func (d *Driver) ListExtracted(_ context.Context, from, to time.Time) ([]storage.ExtractedRow, error) {
	return d.filterExtracted(func(r storage.ExtractedRow) bool {
		return !r.Timestamp.Before(from) && r.Timestamp.Before(to)
	}), nil
}

// ListExtractedForEvent returns the rows of one event in insertion order.
func (d *Driver) ListExtractedForEvent(_ context.Context, eventID string) ([]storage.ExtractedRow, error) {
	return d.filterExtracted(func(r storage.ExtractedRow) bool {
		return r.EventID == eventID
	}), nil
}

func (d *Driver) filterExtracted(keep func(storage.ExtractedRow) bool) []storage.ExtractedRow {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []storage.ExtractedRow
	for _, r := range d.extracted {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// InvalidateAll marks every recorded day as changed at at.
func (d *Driver) InvalidateAll(_ context.Context, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for day, c := range d.currency {
		c.RawChanged = at.UTC().Truncate(time.Millisecond)
		d.currency[day] = c
	}
	return nil
}
