// Package fetchcache persists the outcome of external fetcher lookups so each
// key is fetched at most once per successful or permanently failed attempt.
package fetchcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/papercomputeco/tracks/pkg/storage"
)

// Kind classifies a cached outcome.
type Kind string

const (
	KindSuccess          Kind = "success"
	KindTemporaryFailure Kind = "temporary_failure"
	KindPermanentFailure Kind = "permanent_failure"
)

// Entry is one cached fetch outcome.
type Entry struct {
	Kind      Kind      `json:"kind"`
	FetchedAt time.Time `json:"fetched_at"`

	// Data is the raw fetched payload of a success.
	Data []byte `json:"data,omitempty"`

	// RetryNotBefore is set for temporary failures.
	RetryNotBefore *time.Time `json:"retry_not_before,omitempty"`

	// Reason describes a failure.
	Reason string `json:"reason,omitempty"`
}

// Success builds a success entry.
func Success(at time.Time, data []byte) *Entry {
	return &Entry{Kind: KindSuccess, FetchedAt: at, Data: data}
}

// TemporaryFailure builds a failure entry that may be retried after
// retryAfter.
func TemporaryFailure(at time.Time, retryAfter time.Duration, reason string) *Entry {
	notBefore := at.Add(retryAfter)
	return &Entry{Kind: KindTemporaryFailure, FetchedAt: at, RetryNotBefore: &notBefore, Reason: reason}
}

// PermanentFailure builds a failure entry that is never retried.
func PermanentFailure(at time.Time, reason string) *Entry {
	return &Entry{Kind: KindPermanentFailure, FetchedAt: at, Reason: reason}
}

// Expired reports whether the entry should be refetched at now. Only
// temporary failures expire.
func (e *Entry) Expired(now time.Time) bool {
	if e.Kind != KindTemporaryFailure {
		return false
	}
	return e.RetryNotBefore == nil || !now.Before(*e.RetryNotBefore)
}

// Key namespaces an inner cache key by fetcher id.
func Key(fetcherID, inner string) string {
	return fetcherID + ":" + inner
}

// Cache stores fetch outcomes. Get returns storage.NotFoundError on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, e *Entry) error
}

// Encode serializes an entry.
func Encode(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fetch cache entry: %w", err)
	}
	return data, nil
}

// DecodeError is returned for a stored value that is not a valid entry.
// Callers may treat it as a miss and overwrite the value.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "failed to decode fetch cache entry: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses an entry written by Encode.
func Decode(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &DecodeError{Err: err}
	}
	switch e.Kind {
	case KindSuccess, KindTemporaryFailure, KindPermanentFailure:
	default:
		return nil, &DecodeError{Err: fmt.Errorf("unknown fetch cache entry kind %q", e.Kind)}
	}
	return &e, nil
}

// Store is a Cache over a storage driver's fetcher_cache table.
type Store struct {
	store storage.FetchCacheStore
}

var _ Cache = (*Store)(nil)

// NewStore creates a Cache backed by store.
func NewStore(store storage.FetchCacheStore) *Store {
	return &Store{store: store}
}

func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.store.GetFetchCache(ctx, key)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (s *Store) Put(ctx context.Context, key string, e *Entry) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	return s.store.PutFetchCache(ctx, key, e.FetchedAt, data)
}
