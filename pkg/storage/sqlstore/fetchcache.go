package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/tracks/pkg/storage"
)

// GetFetchCache returns the cached value for key.
func (s *Store) GetFetchCache(ctx context.Context, key string) ([]byte, error) {
	query, args := s.builder().Select("value").
		From(entsql.Table(tableFetcherCache)).
		Where(entsql.EQ("key", key)).
		Query()

	var value string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: storage.KindFetchCache, Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fetch cache entry: %w", err)
	}
	return []byte(value), nil
}

// PutFetchCache inserts or replaces the value for key.
func (s *Store) PutFetchCache(ctx context.Context, key string, at time.Time, value []byte) error {
	_, err := exec(ctx, s.db, s.builder().Insert(tableFetcherCache).
		Columns("key", "timestamp", "value").
		Values(key, ms(at), string(value)).
		OnConflict(
			entsql.ConflictColumns("key"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("timestamp")
				u.SetExcluded("value")
			}),
		))
	if err != nil {
		return fmt.Errorf("failed to put fetch cache entry: %w", err)
	}
	return nil
}
