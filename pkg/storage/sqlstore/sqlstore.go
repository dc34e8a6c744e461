// Package sqlstore implements storage.Driver on database/sql. Queries are
// built with ent's dialect-aware SQL builder so the same code serves SQLite
// and PostgreSQL.
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

// Table names.
const (
	tableEvents           = "events"
	tableFetcherCache     = "fetcher_cache"
	tableRuleGroups       = "tag_rule_groups"
	tableExtractedEvents  = "extracted_events"
	tableExtractedCurrent = "extracted_current"
)

// insertBatchSize bounds rows per INSERT statement, keeping bind parameters
// well below SQLite's limit.
const insertBatchSize = 500

// Store is a SQL-backed storage.Driver.
type Store struct {
	db      *sql.DB
	dialect string
}

var _ storage.Driver = (*Store)(nil)

// New wraps an open database and creates the schema if needed. dialectName
// is one of entgo.io/ent/dialect's SQLite or Postgres.
func New(ctx context.Context, db *sql.DB, dialectName string) (*Store, error) {
	switch dialectName {
	case dialect.SQLite, dialect.Postgres:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialectName)
	}

	s := &Store{db: db, dialect: dialectName}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}

func schema(d string) []string {
	autoID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == dialect.Postgres {
		autoID = "BIGSERIAL PRIMARY KEY"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			"timestamp" BIGINT NOT NULL,
			duration BIGINT NOT NULL,
			data_type TEXT NOT NULL,
			data TEXT NOT NULL,
			inserted_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS events_timestamp_id ON events ("timestamp", id)`,
		`CREATE TABLE IF NOT EXISTS fetcher_cache (
			"key" TEXT PRIMARY KEY,
			"timestamp" BIGINT NOT NULL,
			"value" TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tag_rule_groups (
			global_id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS extracted_events (
			id ` + autoID + `,
			"timestamp" BIGINT NOT NULL,
			event_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			"value" TEXT NOT NULL,
			duration BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS extracted_events_timestamp ON extracted_events ("timestamp")`,
		`CREATE INDEX IF NOT EXISTS extracted_events_event_id ON extracted_events (event_id)`,
		`CREATE TABLE IF NOT EXISTS extracted_current (
			utc_date TEXT PRIMARY KEY,
			extracted_timestamp BIGINT,
			raw_events_changed_timestamp BIGINT NOT NULL DEFAULT 0
		)`,
	}
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func exec(ctx context.Context, q querier, b entsql.Querier) (sql.Result, error) {
	query, args := b.Query()
	return q.ExecContext(ctx, query, args...)
}

func ms(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMS(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}
