package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/tracks/pkg/fetchcache"
	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/storage"
	"github.com/papercomputeco/tracks/pkg/tags"
)

func (e *Engine) applyExternal(ctx context.Context, name string, entry *fetcher.Entry[fetcher.External], t *tags.Tags) (*result, error) {
	m, ok := entry.Match(t)
	if !ok {
		return nil, nil
	}

	f := entry.Fetcher
	inner, err := f.CacheKey(m)
	if err != nil {
		e.logger.Warn("computing cache key failed", "rule", name, "fetcher", f.ID(), "error", err)
		return nil, nil
	}

	outcome, err := e.lookup(ctx, f, inner)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, nil
	}
	if outcome.Kind != fetchcache.KindSuccess {
		e.logger.Debug("cached fetch failure",
			"rule", name,
			"fetcher", f.ID(),
			"key", inner,
			"kind", outcome.Kind,
			"reason", outcome.Reason,
		)
		return nil, nil
	}

	tvs, err := f.Process(outcome.Data)
	if err != nil {
		e.logger.Warn("processing fetched data failed", "rule", name, "fetcher", f.ID(), "key", inner, "error", err)
		return nil, nil
	}
	if err := entry.CheckOutputs(tvs); err != nil {
		e.logger.Warn("rejecting fetcher output", "rule", name, "error", err)
		return nil, nil
	}
	return &result{produced: tvs, matched: m.Matched}, nil
}

// lookup returns the cached outcome for inner, fetching and caching it when
// missing or when a temporary failure has expired. It returns nil when no
// outcome is available: in cache-only mode, or when the fetch failed in a
// way that is not classified and therefore not cached.
func (e *Engine) lookup(ctx context.Context, f fetcher.External, inner string) (*fetchcache.Entry, error) {
	key := fetchcache.Key(f.ID(), inner)
	now := e.now()

	cached, err := e.cache.Get(ctx, key)
	var (
		notFound  storage.NotFoundError
		decodeErr *fetchcache.DecodeError
	)
	switch {
	case err == nil:
		if !cached.Expired(now) {
			return cached, nil
		}
	case errors.As(err, &notFound):
	case errors.As(err, &decodeErr):
		e.logger.Warn("ignoring unreadable fetch cache entry", "fetcher", f.ID(), "key", inner, "error", err)
	default:
		return nil, fmt.Errorf("failed to read fetch cache: %w", err)
	}

	if e.cacheOnly {
		return cached, nil
	}

	data, err := f.Fetch(ctx, inner)

	var (
		outcome *fetchcache.Entry
		temp    *fetcher.TemporaryError
		perm    *fetcher.PermanentError
	)
	switch {
	case err == nil:
		outcome = fetchcache.Success(now, data)
	case errors.As(err, &temp):
		retryAfter := temp.RetryAfter
		if retryAfter <= 0 {
			retryAfter = fetcher.DefaultRetryAfter
		}
		outcome = fetchcache.TemporaryFailure(now, retryAfter, temp.Reason)
	case errors.As(err, &perm):
		outcome = fetchcache.PermanentFailure(now, perm.Reason)
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn("fetch failed", "fetcher", f.ID(), "key", inner, "error", err)
		return nil, nil
	}

	if err := e.cache.Put(ctx, key, outcome); err != nil {
		return nil, fmt.Errorf("failed to write fetch cache: %w", err)
	}
	return outcome, nil
}
