package fetcher

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/papercomputeco/tracks/pkg/tags"
)

// Kind names used in logs and errors.
const (
	KindSimple   = "simple"
	KindExternal = "external"
)

// Entry is a registered fetcher with its compiled requirements.
type Entry[F Fetcher] struct {
	Fetcher  F
	Matchers []tags.Matcher
	outputs  map[string]struct{}
}

// Match runs the requirement matchers against t.
func (e *Entry[F]) Match(t *tags.Tags) (*tags.Match, bool) {
	return t.MatchMultiRegex(e.Matchers)
}

// CheckOutputs verifies every produced tag was declared by the fetcher.
func (e *Entry[F]) CheckOutputs(tvs []tags.TagValue) error {
	for _, tv := range tvs {
		if _, ok := e.outputs[tv.Tag]; !ok {
			return OutputViolationError{FetcherID: e.Fetcher.ID(), Tag: tv.Tag}
		}
	}
	return nil
}

// Registry is an immutable id -> fetcher table per fetcher kind. It is safe
// for concurrent use once built.
type Registry struct {
	simple   map[string]*Entry[Simple]
	external map[string]*Entry[External]
}

// NewRegistry compiles and registers fetchers. Fetchers whose requirement
// regexes are not anchored or do not compile are logged and left out.
// Duplicate ids are an error.
func NewRegistry(logger *slog.Logger, fetchers ...Fetcher) (*Registry, error) {
	r := &Registry{
		simple:   make(map[string]*Entry[Simple]),
		external: make(map[string]*Entry[External]),
	}

	for _, f := range fetchers {
		id := f.ID()
		if id == "" {
			return nil, errors.New("fetcher with empty id")
		}
		if _, dup := r.simple[id]; dup {
			return nil, fmt.Errorf("duplicate fetcher id %q", id)
		}
		if _, dup := r.external[id]; dup {
			return nil, fmt.Errorf("duplicate fetcher id %q", id)
		}

		matchers, err := compileRequirements(f.Requirements())
		if err != nil {
			logger.Warn("dropping fetcher with invalid requirements", "fetcher", id, "error", err)
			continue
		}
		outputs := make(map[string]struct{}, len(f.Outputs()))
		for _, o := range f.Outputs() {
			outputs[o] = struct{}{}
		}

		switch typed := f.(type) {
		case External:
			r.external[id] = &Entry[External]{Fetcher: typed, Matchers: matchers, outputs: outputs}
		case Simple:
			r.simple[id] = &Entry[Simple]{Fetcher: typed, Matchers: matchers, outputs: outputs}
		default:
			return nil, fmt.Errorf("fetcher %q implements neither Simple nor External", id)
		}
	}

	return r, nil
}

func compileRequirements(reqs []Requirement) ([]tags.Matcher, error) {
	matchers := make([]tags.Matcher, 0, len(reqs))
	for _, req := range reqs {
		m, err := tags.CompileMatcher(req.Tag, req.Regex)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

// Simple looks up a simple fetcher.
func (r *Registry) Simple(id string) (*Entry[Simple], error) {
	e, ok := r.simple[id]
	if !ok {
		return nil, UnknownFetcherError{ID: id, Kind: KindSimple}
	}
	return e, nil
}

// External looks up an external fetcher.
func (r *Registry) External(id string) (*Entry[External], error) {
	e, ok := r.external[id]
	if !ok {
		return nil, UnknownFetcherError{ID: id, Kind: KindExternal}
	}
	return e, nil
}

// IDs returns every registered id, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.simple)+len(r.external))
	for id := range r.simple {
		ids = append(ids, id)
	}
	for id := range r.external {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
