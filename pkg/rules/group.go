package rules

import (
	"encoding/json"
	"errors"
	"fmt"
)

// VersionV1 is the only group data version.
const VersionV1 = "V1"

// ErrUnsupportedVersion is returned for group data with an unknown version.
var ErrUnsupportedVersion = errors.New("unsupported rule group version")

// TagRuleGroup is a named, independently enabled list of rules with a stable
// global id.
type TagRuleGroup struct {
	GlobalID string        `json:"global_id"`
	Data     VersionedData `json:"data"`
}

// VersionedData wraps version-tagged group data. It encodes as
// {"version":"V1","data":{...}}.
type VersionedData struct {
	V1 *GroupData
}

// GroupData is the V1 payload of a rule group.
type GroupData struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Editable    bool        `json:"editable"`
	Enabled     bool        `json:"enabled"`
	Rules       []RuleEntry `json:"rules"`
}

// RuleEntry is a rule with its own enabled flag.
type RuleEntry struct {
	Enabled bool
	Rule    Rule
}

// NewGroup returns a V1 group.
func NewGroup(globalID string, data GroupData) TagRuleGroup {
	return TagRuleGroup{GlobalID: globalID, Data: VersionedData{V1: &data}}
}

// Current returns the group data migrated to the latest version.
func (g TagRuleGroup) Current() (*GroupData, error) {
	if g.Data.V1 == nil {
		return nil, fmt.Errorf("rule group %s: %w", g.GlobalID, ErrUnsupportedVersion)
	}
	return g.Data.V1, nil
}

func (v VersionedData) MarshalJSON() ([]byte, error) {
	if v.V1 == nil {
		return nil, ErrUnsupportedVersion
	}
	return json.Marshal(struct {
		Version string     `json:"version"`
		Data    *GroupData `json:"data"`
	}{Version: VersionV1, Data: v.V1})
}

func (v *VersionedData) UnmarshalJSON(data []byte) error {
	var raw struct {
		Version string          `json:"version"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Version {
	case VersionV1:
		var gd GroupData
		if err := json.Unmarshal(raw.Data, &gd); err != nil {
			return fmt.Errorf("decoding V1 group data: %w", err)
		}
		v.V1 = &gd
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, raw.Version)
	}
}

func (e RuleEntry) MarshalJSON() ([]byte, error) {
	rule, err := MarshalRule(e.Rule)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Enabled bool            `json:"enabled"`
		Rule    json.RawMessage `json:"rule"`
	}{Enabled: e.Enabled, Rule: rule})
}

func (e *RuleEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Enabled bool            `json:"enabled"`
		Rule    json.RawMessage `json:"rule"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rule, err := UnmarshalRule(raw.Rule)
	if err != nil {
		return err
	}
	e.Enabled = raw.Enabled
	e.Rule = rule
	return nil
}

// ParseGroups decodes a JSON array of rule groups.
func ParseGroups(data []byte) ([]TagRuleGroup, error) {
	var groups []TagRuleGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parsing rule groups: %w", err)
	}
	for _, g := range groups {
		if g.GlobalID == "" {
			return nil, errors.New("parsing rule groups: group without global_id")
		}
	}
	return groups, nil
}
