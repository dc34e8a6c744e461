package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/tracks/pkg/events"
	"github.com/papercomputeco/tracks/pkg/storage"
)

var eventColumns = []string{"id", "timestamp", "duration", "data_type", "data", "inserted_at"}

// ListEvents returns events in the query window ordered by (timestamp, id).
func (s *Store) ListEvents(ctx context.Context, q storage.EventQuery) ([]*events.Event, error) {
	sel := s.builder().Select(eventColumns...).From(entsql.Table(tableEvents))

	var preds []*entsql.Predicate
	if !q.From.IsZero() {
		preds = append(preds, entsql.GTE("timestamp", ms(q.From)))
	}
	if !q.To.IsZero() {
		preds = append(preds, entsql.LT("timestamp", ms(q.To)))
	}
	if q.After != nil {
		past := entsql.GT
		if q.Desc {
			past = entsql.LT
		}
		ts := ms(q.After.Timestamp)
		preds = append(preds, entsql.Or(
			past("timestamp", ts),
			entsql.And(entsql.EQ("timestamp", ts), past("id", q.After.ID)),
		))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}

	if q.Desc {
		sel.OrderBy(entsql.Desc("timestamp"), entsql.Desc("id"))
	} else {
		sel.OrderBy("timestamp", "id")
	}
	if q.Limit > 0 {
		sel.Limit(q.Limit)
	}

	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*events.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return out, nil
}

// GetEvent returns a single event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*events.Event, error) {
	query, args := s.builder().Select(eventColumns...).
		From(entsql.Table(tableEvents)).
		Where(entsql.EQ("id", id)).
		Query()

	e, err := scanEvent(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: storage.KindEvent, Key: id}
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*events.Event, error) {
	var (
		e                 events.Event
		ts, dur, inserted int64
		data              string
	)
	if err := row.Scan(&e.ID, &ts, &dur, &e.DataType, &data, &inserted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	e.Timestamp = fromMS(ts)
	e.Duration = time.Duration(dur) * time.Millisecond
	e.Data = []byte(data)
	e.InsertedAt = fromMS(inserted)
	return &e, nil
}

// InsertEvents stores new events and bumps the raw-events-changed timestamp
// of each day they start on, in one transaction.
func (s *Store) InsertEvents(ctx context.Context, evs []*events.Event, changedAt time.Time) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		days := make(map[string]struct{})
		for _, e := range evs {
			res, err := exec(ctx, tx, s.builder().Insert(tableEvents).
				Columns(eventColumns...).
				Values(e.ID, ms(e.Timestamp), e.Duration.Milliseconds(), e.DataType, string(e.Data), ms(changedAt)).
				OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()))
			if err != nil {
				return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				inserted++
				days[storage.Day(e.Timestamp)] = struct{}{}
			}
		}

		for day := range days {
			if err := s.bumpRawChanged(ctx, tx, day, changedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// bumpRawChanged moves the day's raw-events-changed timestamp to at, or
// further when needed so that it strictly increases and is not before the
// day's last extraction. Either way the day reads as stale afterwards, even
// when at was taken before a concurrent extraction started.
func (s *Store) bumpRawChanged(ctx context.Context, tx *sql.Tx, day string, at time.Time) error {
	changed := ms(at)
	cur, found, err := s.currencyForUpdate(ctx, tx, day)
	if err != nil {
		return err
	}
	if found {
		changed = max(changed, cur.raw+1)
		if cur.extracted.Valid {
			changed = max(changed, cur.extracted.Int64)
		}
	}

	_, err = exec(ctx, tx, s.builder().Insert(tableExtractedCurrent).
		Columns("utc_date", "extracted_timestamp", "raw_events_changed_timestamp").
		Values(day, nil, changed).
		OnConflict(
			entsql.ConflictColumns("utc_date"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("raw_events_changed_timestamp")
			}),
		))
	if err != nil {
		return fmt.Errorf("failed to mark day %s changed: %w", day, err)
	}
	return nil
}
