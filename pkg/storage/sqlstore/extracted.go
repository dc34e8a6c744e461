package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/tracks/pkg/storage"
)

var extractedColumns = []string{"id", "timestamp", "event_id", "tag", "value", "duration"}

// GetCurrency returns the currency records of the given days.
func (s *Store) GetCurrency(ctx context.Context, days []string) (map[string]storage.Currency, error) {
	out := make(map[string]storage.Currency, len(days))
	if len(days) == 0 {
		return out, nil
	}

	args := make([]any, len(days))
	for i, d := range days {
		args[i] = d
	}
	query, qargs := s.builder().Select("utc_date", "extracted_timestamp", "raw_events_changed_timestamp").
		From(entsql.Table(tableExtractedCurrent)).
		Where(entsql.In("utc_date", args...)).
		Query()

	rows, err := s.db.QueryContext(ctx, query, qargs...)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction currency: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c          storage.Currency
			extracted  sql.NullInt64
			rawChanged int64
		)
		if err := rows.Scan(&c.Day, &extracted, &rawChanged); err != nil {
			return nil, fmt.Errorf("failed to scan extraction currency: %w", err)
		}
		if extracted.Valid {
			c.Extracted = fromMS(extracted.Int64)
		}
		c.RawChanged = fromMS(rawChanged)
		out[c.Day] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read extraction currency: %w", err)
	}
	return out, nil
}

type currencyRow struct {
	extracted sql.NullInt64
	raw       int64
}

// currencyForUpdate reads the currency record of day inside tx, locking the
// row on PostgreSQL. SQLite serializes writers on its single connection.
func (s *Store) currencyForUpdate(ctx context.Context, tx *sql.Tx, day string) (currencyRow, bool, error) {
	sel := s.builder().Select("extracted_timestamp", "raw_events_changed_timestamp").
		From(entsql.Table(tableExtractedCurrent)).
		Where(entsql.EQ("utc_date", day))
	if s.dialect == dialect.Postgres {
		sel.ForUpdate()
	}
	query, args := sel.Query()

	var c currencyRow
	err := tx.QueryRowContext(ctx, query, args...).Scan(&c.extracted, &c.raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return c, false, nil
	case err != nil:
		return c, false, fmt.Errorf("failed to read currency of %s: %w", day, err)
	}
	return c, true, nil
}

// ReplaceDay swaps the materialized rows of a day in a single transaction
// and marks the day extracted when its raw events did not change since seen
// was read.
func (s *Store) ReplaceDay(ctx context.Context, day string, from, to time.Time, rows []storage.ExtractedRow, extractedAt time.Time, seen *storage.Currency) (bool, error) {
	marked := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, found, err := s.currencyForUpdate(ctx, tx, day)
		if err != nil {
			return err
		}

		_, err = exec(ctx, tx, s.builder().Delete(tableExtractedEvents).
			Where(entsql.And(
				entsql.GTE("timestamp", ms(from)),
				entsql.LT("timestamp", ms(to)),
			)))
		if err != nil {
			return fmt.Errorf("failed to clear extracted rows for %s: %w", day, err)
		}

		for start := 0; start < len(rows); start += insertBatchSize {
			end := min(start+insertBatchSize, len(rows))
			ins := s.builder().Insert(tableExtractedEvents).Columns(extractedColumns[1:]...)
			for _, r := range rows[start:end] {
				ins.Values(ms(r.Timestamp), r.EventID, r.Tag, r.Value, r.Duration.Milliseconds())
			}
			if _, err := exec(ctx, tx, ins); err != nil {
				return fmt.Errorf("failed to insert extracted rows for %s: %w", day, err)
			}
		}

		if !storage.Unchanged(seen, found, fromMS(cur.raw)) {
			return nil
		}

		_, err = exec(ctx, tx, s.builder().Insert(tableExtractedCurrent).
			Columns("utc_date", "extracted_timestamp", "raw_events_changed_timestamp").
			Values(day, ms(extractedAt), 0).
			OnConflict(
				entsql.ConflictColumns("utc_date"),
				entsql.ResolveWith(func(u *entsql.UpdateSet) {
					u.SetExcluded("extracted_timestamp")
				}),
			))
		if err != nil {
			return fmt.Errorf("failed to record extraction of %s: %w", day, err)
		}
		marked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return marked, nil
}

// ListExtracted returns rows in [from, to) in insertion order.
func (s *Store) ListExtracted(ctx context.Context, from, to time.Time) ([]storage.ExtractedRow, error) {
	return s.queryExtracted(ctx, entsql.And(
		entsql.GTE("timestamp", ms(from)),
		entsql.LT("timestamp", ms(to)),
	))
}

// ListExtractedForEvent returns the rows of one event in insertion order.
func (s *Store) ListExtractedForEvent(ctx context.Context, eventID string) ([]storage.ExtractedRow, error) {
	return s.queryExtracted(ctx, entsql.EQ("event_id", eventID))
}

func (s *Store) queryExtracted(ctx context.Context, where *entsql.Predicate) ([]storage.ExtractedRow, error) {
	query, args := s.builder().Select(extractedColumns...).
		From(entsql.Table(tableExtractedEvents)).
		Where(where).
		OrderBy("id").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted rows: %w", err)
	}
	defer rows.Close()

	var out []storage.ExtractedRow
	for rows.Next() {
		var (
			r       storage.ExtractedRow
			ts, dur int64
		)
		if err := rows.Scan(&r.ID, &ts, &r.EventID, &r.Tag, &r.Value, &dur); err != nil {
			return nil, fmt.Errorf("failed to scan extracted row: %w", err)
		}
		r.Timestamp = fromMS(ts)
		r.Duration = time.Duration(dur) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list extracted rows: %w", err)
	}
	return out, nil
}

// InvalidateAll marks every recorded day as changed at at.
func (s *Store) InvalidateAll(ctx context.Context, at time.Time) error {
	_, err := exec(ctx, s.db, s.builder().Update(tableExtractedCurrent).
		Set("raw_events_changed_timestamp", ms(at)))
	if err != nil {
		return fmt.Errorf("failed to invalidate extraction cache: %w", err)
	}
	return nil
}
