package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/tags"
)

// result is a successful rule application.
type result struct {
	produced []tags.TagValue
	matched  []tags.TagValue
}

// applyFunc returns nil when the rule does not match. Errors are fatal to the
// whole evaluation; rule-local failures are logged and reported as no match.
type applyFunc func(ctx context.Context, t *tags.Tags) (*result, error)

type compiledRule struct {
	group string
	name  string
	apply applyFunc
}

func (e *Engine) compileRule(name string, rule rules.Rule) (applyFunc, error) {
	switch r := rule.(type) {
	case rules.HasTag:
		return func(_ context.Context, t *tags.Tags) (*result, error) {
			v, ok := t.GetOneValueOf(r.Tag)
			if !ok {
				return nil, nil
			}
			return &result{
				produced: rules.ExpandAll(r.NewTags, map[string]string{"value": v}),
				matched:  []tags.TagValue{{Tag: r.Tag, Value: v}},
			}, nil
		}, nil

	case rules.ExactTagValue:
		return func(_ context.Context, t *tags.Tags) (*result, error) {
			if !t.HasValue(r.Tag, r.Value) {
				return nil, nil
			}
			return &result{
				produced: rules.ExpandAll(r.NewTags, map[string]string{"value": r.Value}),
				matched:  []tags.TagValue{{Tag: r.Tag, Value: r.Value}},
			}, nil
		}, nil

	case rules.TagValuePrefix:
		return func(_ context.Context, t *tags.Tags) (*result, error) {
			for _, v := range t.GetAllValuesOf(r.Tag) {
				if !strings.HasPrefix(v, r.Prefix) {
					continue
				}
				env := map[string]string{
					"value":  v,
					"prefix": r.Prefix,
					"suffix": strings.TrimPrefix(v, r.Prefix),
				}
				return &result{
					produced: rules.ExpandAll(r.NewTags, env),
					matched:  []tags.TagValue{{Tag: r.Tag, Value: v}},
				}, nil
			}
			return nil, nil
		}, nil

	case rules.TagRegex:
		if len(r.Regexes) == 0 {
			return nil, errors.New("TagRegex rule has no regexes")
		}
		matchers := make([]tags.Matcher, 0, len(r.Regexes))
		for _, entry := range r.Regexes {
			m, err := tags.CompileMatcher(entry.Tag, entry.Regex)
			if err != nil {
				return nil, err
			}
			matchers = append(matchers, m)
		}
		return func(_ context.Context, t *tags.Tags) (*result, error) {
			m, ok := t.MatchMultiRegex(matchers)
			if !ok {
				return nil, nil
			}
			return &result{
				produced: rules.ExpandAll(r.NewTags, m.Captures),
				matched:  m.Matched,
			}, nil
		}, nil

	case rules.InternalFetcher:
		if e.registry == nil {
			return nil, errors.New("no fetcher registry configured")
		}
		entry, err := e.registry.Simple(r.FetcherID)
		if err != nil {
			return nil, err
		}
		return func(_ context.Context, t *tags.Tags) (*result, error) {
			return e.applySimple(name, entry, t), nil
		}, nil

	case rules.ExternalFetcher:
		if e.registry == nil {
			return nil, errors.New("no fetcher registry configured")
		}
		if e.cache == nil {
			return nil, errors.New("no fetch cache configured")
		}
		entry, err := e.registry.External(r.FetcherID)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, t *tags.Tags) (*result, error) {
			return e.applyExternal(ctx, name, entry, t)
		}, nil

	default:
		return nil, fmt.Errorf("%w: %T", rules.ErrUnknownRuleType, rule)
	}
}

func (e *Engine) applySimple(name string, entry *fetcher.Entry[fetcher.Simple], t *tags.Tags) *result {
	m, ok := entry.Match(t)
	if !ok {
		return nil
	}

	tvs, err := entry.Fetcher.Derive(m, t)
	if err != nil {
		e.logger.Warn("fetcher failed", "rule", name, "fetcher", entry.Fetcher.ID(), "error", err)
		return nil
	}
	if err := entry.CheckOutputs(tvs); err != nil {
		e.logger.Warn("rejecting fetcher output", "rule", name, "error", err)
		return nil
	}
	return &result{produced: tvs, matched: m.Matched}
}
