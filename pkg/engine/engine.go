// Package engine derives tags from an event's intrinsic tags by applying the
// active rule set until no rule adds anything new.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/tracks/pkg/fetchcache"
	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/tags"
)

// MaxPasses bounds the fixed point loop.
const MaxPasses = 50

// GroupLister provides persisted rule groups.
type GroupLister interface {
	ListRuleGroups(ctx context.Context) ([]rules.TagRuleGroup, error)
}

// Config holds configuration for an Engine.
type Config struct {
	// Groups lists persisted groups. Nil means defaults only.
	Groups GroupLister

	// Defaults are appended after the persisted groups.
	Defaults []rules.TagRuleGroup

	Registry *fetcher.Registry
	Cache    fetchcache.Cache
	Logger   *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// CacheOnly disables network fetches. External fetcher rules then only
	// use outcomes already in the cache.
	CacheOnly bool
}

// Engine compiles rule groups into rule sets and evaluates them.
type Engine struct {
	groups    GroupLister
	defaults  []rules.TagRuleGroup
	registry  *fetcher.Registry
	cache     fetchcache.Cache
	logger    *slog.Logger
	now       func() time.Time
	cacheOnly bool
}

// New creates an Engine.
func New(cfg Config) *Engine {
	e := &Engine{
		groups:    cfg.Groups,
		defaults:  cfg.Defaults,
		registry:  cfg.Registry,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		now:       cfg.Now,
		cacheOnly: cfg.CacheOnly,
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Compile loads the persisted groups and compiles them, followed by the
// defaults, into a RuleSet. Each call picks up the current persisted state.
func (e *Engine) Compile(ctx context.Context) (*RuleSet, error) {
	var groups []rules.TagRuleGroup
	if e.groups != nil {
		persisted, err := e.groups.ListRuleGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load rule groups: %w", err)
		}
		groups = append(groups, persisted...)
	}
	groups = append(groups, e.defaults...)
	return e.CompileGroups(groups), nil
}

// CompileGroups compiles groups in order. Disabled groups and rules are
// skipped. Rules that fail validation, such as unanchored regexes or unknown
// fetcher ids, are logged and left out.
func (e *Engine) CompileGroups(groups []rules.TagRuleGroup) *RuleSet {
	rs := &RuleSet{engine: e}
	for _, g := range groups {
		data, err := g.Current()
		if err != nil {
			e.logger.Warn("skipping rule group", "group", g.GlobalID, "error", err)
			continue
		}
		if !data.Enabled {
			continue
		}

		for i, entry := range data.Rules {
			if !entry.Enabled || entry.Rule == nil {
				continue
			}
			name := fmt.Sprintf("%s#%d %s", g.GlobalID, i, entry.Rule.Describe())
			apply, err := e.compileRule(name, entry.Rule)
			if err != nil {
				e.logger.Warn("dropping invalid rule", "rule", name, "error", err)
				continue
			}
			rs.rules = append(rs.rules, &compiledRule{group: g.GlobalID, name: name, apply: apply})
		}
	}
	return rs
}

// GetTags compiles the current rules and evaluates them on intrinsic.
func (e *Engine) GetTags(ctx context.Context, intrinsic *tags.Tags) (*tags.Tags, error) {
	rs, err := e.Compile(ctx)
	if err != nil {
		return nil, err
	}
	return rs.GetTags(ctx, intrinsic)
}

// GetTagsWithReasons is GetTags with provenance.
func (e *Engine) GetTagsWithReasons(ctx context.Context, intrinsic *tags.Tags) (*tags.Tags, Reasons, error) {
	rs, err := e.Compile(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rs.GetTagsWithReasons(ctx, intrinsic)
}
