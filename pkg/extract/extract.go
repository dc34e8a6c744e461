// Package extract materializes derived tags per UTC day and keeps them in
// step with the raw event log.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/papercomputeco/tracks/pkg/engine"
	"github.com/papercomputeco/tracks/pkg/events"
	"github.com/papercomputeco/tracks/pkg/eventstream"
	"github.com/papercomputeco/tracks/pkg/eventstream/nop"
	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/storage"
	"github.com/papercomputeco/tracks/pkg/tags"
)

// Store is the storage an Extractor reads raw events from and writes
// materialized rows to.
type Store interface {
	storage.EventSource
	storage.ExtractedStore
}

// Config holds configuration for an Extractor.
type Config struct {
	Store  Store
	Engine *engine.Engine

	// ChunkSize is the raw event page size. Defaults to
	// storage.DefaultChunkSize.
	ChunkSize int

	// Publisher is notified after every re-derived day. Defaults to a no-op.
	Publisher eventstream.Publisher

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Extractor re-derives stale days and serves materialized tags.
type Extractor struct {
	store     Store
	engine    *engine.Engine
	chunkSize int
	publisher eventstream.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	x := &Extractor{
		store:     cfg.Store,
		engine:    cfg.Engine,
		chunkSize: cfg.ChunkSize,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if x.chunkSize <= 0 {
		x.chunkSize = storage.DefaultChunkSize
	}
	if x.publisher == nil {
		x.publisher = nop.NewPublisher()
	}
	if x.logger == nil {
		x.logger = logger.Nop()
	}
	if x.now == nil {
		x.now = time.Now
	}
	return x
}

// ExtractedEvent is one event with its materialized tags.
type ExtractedEvent struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Tags      *tags.Tags    `json:"tags"`
}

// Filter restricts which tags are returned. An empty filter allows all.
type Filter struct {
	Tags []string
}

func (f Filter) allows(tag string) bool {
	if len(f.Tags) == 0 {
		return true
	}
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// StaleDays returns the affected days of [from, to] whose materialized rows
// are missing or older than their raw events.
func (x *Extractor) StaleDays(ctx context.Context, from, to time.Time) ([]string, error) {
	days := GetAffectedUTCDays(from, to)
	if len(days) == 0 {
		return nil, nil
	}

	currency, err := x.store.GetCurrency(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction currency: %w", err)
	}

	var stale []string
	for _, d := range days {
		if c, ok := currency[d]; ok && c.Fresh() {
			continue
		}
		stale = append(stale, d)
	}
	return stale, nil
}

// EnsureTimeRangeExtractedValid re-derives every stale day of [from, to],
// one day at a time.
func (x *Extractor) EnsureTimeRangeExtractedValid(ctx context.Context, from, to time.Time) error {
	stale, err := x.StaleDays(ctx, from, to)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	rs, err := x.engine.Compile(ctx)
	if err != nil {
		return err
	}
	for _, d := range stale {
		if err := x.ExtractDay(ctx, rs, d); err != nil {
			return err
		}
	}
	return nil
}

// ExtractDay derives the tags of every event starting on day d with rs and
// replaces the day's materialized rows. Derivation finishes before anything
// is written.
func (x *Extractor) ExtractDay(ctx context.Context, rs *engine.RuleSet, d string) error {
	from, to, err := DayWindow(d)
	if err != nil {
		return fmt.Errorf("invalid day %q: %w", d, err)
	}

	started := x.now()
	currency, err := x.store.GetCurrency(ctx, []string{d})
	if err != nil {
		return fmt.Errorf("failed to read extraction currency: %w", err)
	}
	var seen *storage.Currency
	if c, ok := currency[d]; ok {
		seen = &c
	}

	var (
		rows   []storage.ExtractedRow
		nEvent int
	)
	err = storage.StreamEvents(ctx, x.store, from, to, x.chunkSize, func(chunk []*events.Event) error {
		for _, ev := range chunk {
			derived, err := x.derive(ctx, rs, ev)
			if err != nil {
				return err
			}
			nEvent++
			for _, tv := range derived.TagValues() {
				rows = append(rows, storage.ExtractedRow{
					Timestamp: ev.Timestamp,
					EventID:   ev.ID,
					Tag:       tv.Tag,
					Value:     tv.Value,
					Duration:  ev.Duration,
				})
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to derive day %s: %w", d, err)
	}

	marked, err := x.store.ReplaceDay(ctx, d, from, to, rows, started, seen)
	if err != nil {
		return fmt.Errorf("failed to store day %s: %w", d, err)
	}
	if !marked {
		x.logger.Info("raw events changed during extraction, day stays stale", "day", d)
	}

	took := x.now().Sub(started)
	x.logger.Debug("extracted day", "day", d, "events", nEvent, "rows", len(rows), "took", took)

	event := eventstream.NewDayExtractedEvent(d, started, nEvent, len(rows), took)
	if err := x.publisher.PublishDayExtracted(ctx, event); err != nil {
		x.logger.Warn("failed to publish day extracted event", "day", d, "error", err)
	}
	return nil
}

// derive returns the full tag set of ev. Events whose payload cannot be
// decoded are logged and derive no tags, so they contribute no rows.
func (x *Extractor) derive(ctx context.Context, rs *engine.RuleSet, ev *events.Event) (*tags.Tags, error) {
	intrinsic, err := ev.IntrinsicTags()
	if err != nil {
		x.logger.Warn("skipping undecodable event", "event", ev.ID, "error", err)
		return tags.New(), nil
	}
	return rs.GetTags(ctx, intrinsic)
}

// GetExtractedForTimeRange ensures [from, to] is fresh and returns the
// events starting in [from, to) with their materialized tags, in
// chronological order. Results are built from materialized rows, so events
// without tags, or left without tags by filter, are omitted.
func (x *Extractor) GetExtractedForTimeRange(ctx context.Context, from, to time.Time, filter Filter) ([]*ExtractedEvent, error) {
	if err := x.EnsureTimeRangeExtractedValid(ctx, from, to); err != nil {
		return nil, err
	}

	rows, err := x.store.ListExtracted(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted rows: %w", err)
	}
	return group(rows, filter), nil
}

// GetExtractedForSingleEvent ensures the day of event id is fresh and
// returns the event with its materialized tags. An event that derived no
// tags is returned with an empty tag set.
func (x *Extractor) GetExtractedForSingleEvent(ctx context.Context, id string) (*ExtractedEvent, error) {
	ev, err := x.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := x.EnsureTimeRangeExtractedValid(ctx, ev.Timestamp, ev.Timestamp); err != nil {
		return nil, err
	}

	rows, err := x.store.ListExtractedForEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted rows: %w", err)
	}

	out := &ExtractedEvent{ID: ev.ID, Timestamp: ev.Timestamp, Duration: ev.Duration, Tags: tags.New()}
	for _, r := range rows {
		out.Tags.Add(r.Tag, r.Value)
	}
	return out, nil
}

// Invalidate marks every extracted day stale, e.g. after a rule change.
func (x *Extractor) Invalidate(ctx context.Context) error {
	if err := x.store.InvalidateAll(ctx, x.now()); err != nil {
		return fmt.Errorf("failed to invalidate extraction cache: %w", err)
	}
	return nil
}

// group folds rows into events. Rows of one event are contiguous, so a new
// event starts whenever the event id changes.
func group(rows []storage.ExtractedRow, filter Filter) []*ExtractedEvent {
	var (
		out []*ExtractedEvent
		cur *ExtractedEvent
	)
	flush := func() {
		if cur != nil && cur.Tags.TagCount() > 0 {
			out = append(out, cur)
		}
	}

	for _, r := range rows {
		if cur == nil || cur.ID != r.EventID {
			flush()
			cur = &ExtractedEvent{ID: r.EventID, Timestamp: r.Timestamp, Duration: r.Duration, Tags: tags.New()}
		}
		if filter.allows(r.Tag) {
			cur.Tags.Add(r.Tag, r.Value)
		}
	}
	flush()

	// Days are materialized independently, so rows of a later day can carry
	// lower ids than an earlier day re-derived afterwards.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
