package engine

import (
	"context"
	"fmt"

	"github.com/papercomputeco/tracks/pkg/tags"
)

// ReasonKind says where a tag value came from.
type ReasonKind string

const (
	ReasonIntrinsic ReasonKind = "intrinsic"
	ReasonRule      ReasonKind = "rule"
)

// Reason explains a single tag value.
type Reason struct {
	Kind ReasonKind `json:"kind"`

	// Group and Rule identify the producing rule.
	Group string `json:"group,omitempty"`
	Rule  string `json:"rule,omitempty"`

	// Matched holds the tag values the rule matched on.
	Matched []tags.TagValue `json:"matched,omitempty"`
}

// Reasons maps "tag:value" keys to their provenance. When several rules
// produce the same value the last one applied wins. Intrinsic values keep
// their intrinsic reason.
type Reasons map[string]Reason

// RuleSet is an immutable, compiled list of rules in application order. It
// is safe for concurrent use.
type RuleSet struct {
	engine *Engine
	rules  []*compiledRule
}

// Len returns the number of active rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Names returns the active rule names in application order.
func (rs *RuleSet) Names() []string {
	names := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		names[i] = r.name
	}
	return names
}

// GetTags evaluates the rule set on a copy of intrinsic.
func (rs *RuleSet) GetTags(ctx context.Context, intrinsic *tags.Tags) (*tags.Tags, error) {
	t, _, err := rs.evaluate(ctx, intrinsic, false)
	return t, err
}

// GetTagsWithReasons evaluates the rule set and records provenance.
func (rs *RuleSet) GetTagsWithReasons(ctx context.Context, intrinsic *tags.Tags) (*tags.Tags, Reasons, error) {
	return rs.evaluate(ctx, intrinsic, true)
}

func (rs *RuleSet) evaluate(ctx context.Context, intrinsic *tags.Tags, withReasons bool) (*tags.Tags, Reasons, error) {
	t := intrinsic.Clone()

	var reasons Reasons
	if withReasons {
		reasons = make(Reasons, t.TotalValueCount())
		for _, tv := range t.TagValues() {
			reasons[tv.Key()] = Reason{Kind: ReasonIntrinsic}
		}
	}

	for pass := 1; ; pass++ {
		before := t.TotalValueCount()

		for _, r := range rs.rules {
			res, err := r.apply(ctx, t)
			if err != nil {
				return nil, nil, fmt.Errorf("applying rule %s: %w", r.name, err)
			}
			if res == nil {
				continue
			}

			for _, tv := range res.produced {
				if tv.Tag == "" {
					continue
				}
				t.AddTagValue(tv)
				if !withReasons {
					continue
				}
				if prev, ok := reasons[tv.Key()]; ok && prev.Kind == ReasonIntrinsic {
					continue
				}
				reasons[tv.Key()] = Reason{Kind: ReasonRule, Group: r.group, Rule: r.name, Matched: res.matched}
			}
		}

		if t.TotalValueCount() == before {
			break
		}
		if pass == MaxPasses {
			rs.engine.logger.Warn("rule evaluation did not settle",
				"passes", MaxPasses,
				"values", t.TotalValueCount(),
			)
			break
		}
	}

	return t, reasons, nil
}
