package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/tracks/pkg/rules"
)

// ListRuleGroups returns persisted groups ordered by global id.
func (s *Store) ListRuleGroups(ctx context.Context) ([]rules.TagRuleGroup, error) {
	query, args := s.builder().Select("global_id", "data").
		From(entsql.Table(tableRuleGroups)).
		OrderBy("global_id").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule groups: %w", err)
	}
	defer rows.Close()

	var out []rules.TagRuleGroup
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan rule group: %w", err)
		}
		g := rules.TagRuleGroup{GlobalID: id}
		if err := json.Unmarshal([]byte(data), &g.Data); err != nil {
			return nil, fmt.Errorf("failed to decode rule group %s: %w", id, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rule groups: %w", err)
	}
	return out, nil
}

// UpsertRuleGroup inserts or replaces a group by global id.
func (s *Store) UpsertRuleGroup(ctx context.Context, g rules.TagRuleGroup) error {
	data, err := json.Marshal(g.Data)
	if err != nil {
		return fmt.Errorf("failed to encode rule group %s: %w", g.GlobalID, err)
	}

	_, err = exec(ctx, s.db, s.builder().Insert(tableRuleGroups).
		Columns("global_id", "data").
		Values(g.GlobalID, string(data)).
		OnConflict(
			entsql.ConflictColumns("global_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("data")
			}),
		))
	if err != nil {
		return fmt.Errorf("failed to upsert rule group %s: %w", g.GlobalID, err)
	}
	return nil
}
