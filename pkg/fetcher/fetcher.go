// Package fetcher defines pluggable enrichment providers that map matched
// tag values to additional derived tags, and the registry that holds them.
//
// Simple fetchers run locally and synchronously. External fetchers perform
// network I/O; their results are persisted in the fetch cache keyed by
// "{fetcher id}:{cache key}".
package fetcher

import (
	"context"

	"github.com/papercomputeco/tracks/pkg/tags"
)

// Requirement is a (tag, anchored regex) pair that must match before a
// fetcher runs.
type Requirement struct {
	Tag   string
	Regex string
}

// Fetcher is the capability shared by every fetcher kind.
type Fetcher interface {
	// ID is the stable identifier rules refer to. It is also the cache key
	// namespace for external fetchers.
	ID() string

	// Requirements are matched with AND semantics against the tag store.
	Requirements() []Requirement

	// Outputs lists every tag name the fetcher may produce.
	Outputs() []string
}

// Simple is a fetcher that derives tags locally without I/O.
type Simple interface {
	Fetcher

	// Derive produces tags from the requirement match.
	Derive(match *tags.Match, t *tags.Tags) ([]tags.TagValue, error)
}

// External is a fetcher backed by a network lookup.
type External interface {
	Fetcher

	// CacheKey computes the inner cache key from the requirement match.
	// Identical keys must yield identical fetch results.
	CacheKey(match *tags.Match) (string, error)

	// Fetch performs the lookup. Classified failures are reported with
	// *TemporaryError or *PermanentError; any other error is treated as a
	// transient I/O failure that is not cached.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// Process turns a successful payload into tags.
	Process(data []byte) ([]tags.TagValue, error)
}
