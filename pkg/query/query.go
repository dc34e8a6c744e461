// Package query answers tag questions about raw events and manages the rule
// groups that drive derivation.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/tracks/pkg/engine"
	"github.com/papercomputeco/tracks/pkg/extract"
	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/storage"
	"github.com/papercomputeco/tracks/pkg/tags"
)

var (
	// ErrDefaultGroup is returned when a write targets a compiled-in group.
	ErrDefaultGroup = errors.New("default rule groups cannot be modified")

	// ErrInvalidGroup is returned for groups without usable data.
	ErrInvalidGroup = errors.New("invalid rule group")
)

// Store is the storage the Service reads events and rule groups from.
type Store interface {
	storage.EventSource
	storage.RuleGroupStore
}

// Config holds configuration for a Service.
type Config struct {
	Store     Store
	Engine    *engine.Engine
	Extractor *extract.Extractor
	Defaults  []rules.TagRuleGroup
	Logger    *slog.Logger
}

// Service is the query layer.
type Service struct {
	store     Store
	engine    *engine.Engine
	extractor *extract.Extractor
	defaults  []rules.TagRuleGroup
	logger    *slog.Logger
}

// New creates a Service.
func New(cfg Config) *Service {
	s := &Service{
		store:     cfg.Store,
		engine:    cfg.Engine,
		extractor: cfg.Extractor,
		defaults:  cfg.Defaults,
		logger:    cfg.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return s
}

// GetTags derives the tags of a raw event with the current rules, bypassing
// the extraction cache.
func (s *Service) GetTags(ctx context.Context, eventID string) (*tags.Tags, error) {
	intrinsic, err := s.intrinsic(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.engine.GetTags(ctx, intrinsic)
}

// GetTagsWithReasons is GetTags with provenance.
func (s *Service) GetTagsWithReasons(ctx context.Context, eventID string) (*tags.Tags, engine.Reasons, error) {
	intrinsic, err := s.intrinsic(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	return s.engine.GetTagsWithReasons(ctx, intrinsic)
}

// DeriveTags evaluates the current rules on a caller supplied intrinsic tag
// set.
func (s *Service) DeriveTags(ctx context.Context, intrinsic *tags.Tags) (*tags.Tags, engine.Reasons, error) {
	if intrinsic == nil {
		intrinsic = tags.New()
	}
	return s.engine.GetTagsWithReasons(ctx, intrinsic)
}

func (s *Service) intrinsic(ctx context.Context, eventID string) (*tags.Tags, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return ev.IntrinsicTags()
}

// GetExtractedForTimeRange returns materialized tags of the events in
// [from, to).
func (s *Service) GetExtractedForTimeRange(ctx context.Context, from, to time.Time, filter extract.Filter) ([]*extract.ExtractedEvent, error) {
	return s.extractor.GetExtractedForTimeRange(ctx, from, to, filter)
}

// GetExtractedForSingleEvent returns the materialized tags of one event.
func (s *Service) GetExtractedForSingleEvent(ctx context.Context, eventID string) (*extract.ExtractedEvent, error) {
	return s.extractor.GetExtractedForSingleEvent(ctx, eventID)
}

// ListRuleGroups returns the persisted groups followed by the compiled-in
// defaults. Defaults are always reported as not editable.
func (s *Service) ListRuleGroups(ctx context.Context) ([]rules.TagRuleGroup, error) {
	persisted, err := s.store.ListRuleGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule groups: %w", err)
	}

	out := make([]rules.TagRuleGroup, 0, len(persisted)+len(s.defaults))
	out = append(out, persisted...)
	for _, g := range s.defaults {
		data, err := g.Current()
		if err != nil {
			continue
		}
		cp := *data
		cp.Editable = false
		out = append(out, rules.NewGroup(g.GlobalID, cp))
	}
	return out, nil
}

// UpsertRuleGroup stores g and marks all extracted days stale.
func (s *Service) UpsertRuleGroup(ctx context.Context, g rules.TagRuleGroup) error {
	if err := s.checkWritable(g); err != nil {
		return err
	}
	if err := s.store.UpsertRuleGroup(ctx, g); err != nil {
		return fmt.Errorf("failed to store rule group %s: %w", g.GlobalID, err)
	}
	s.logger.Info("rule group updated", "group", g.GlobalID)
	return s.extractor.Invalidate(ctx)
}

// ImportRuleGroups upserts every group and invalidates extraction once. All
// groups are checked before any is written.
func (s *Service) ImportRuleGroups(ctx context.Context, groups []rules.TagRuleGroup) error {
	for _, g := range groups {
		if err := s.checkWritable(g); err != nil {
			return err
		}
	}
	for _, g := range groups {
		if err := s.store.UpsertRuleGroup(ctx, g); err != nil {
			return fmt.Errorf("failed to store rule group %s: %w", g.GlobalID, err)
		}
	}
	s.logger.Info("rule groups imported", "count", len(groups))
	return s.extractor.Invalidate(ctx)
}

func (s *Service) checkWritable(g rules.TagRuleGroup) error {
	if g.GlobalID == "" {
		return fmt.Errorf("%w: missing global id", ErrInvalidGroup)
	}
	if _, err := g.Current(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGroup, err)
	}
	if rules.ContainsID(s.defaults, g.GlobalID) {
		return fmt.Errorf("%w: %s", ErrDefaultGroup, g.GlobalID)
	}
	return nil
}
