package rules

import (
	_ "embed"
	"fmt"
)

//go:embed defaults.json
var defaultsJSON []byte

// LoadDefaults parses the compiled-in default rule groups. Callers load them
// once at startup and share the result read-only.
func LoadDefaults() ([]TagRuleGroup, error) {
	groups, err := ParseGroups(defaultsJSON)
	if err != nil {
		return nil, fmt.Errorf("loading default rule groups: %w", err)
	}
	return groups, nil
}

// ContainsID reports whether groups includes a group with the given id.
func ContainsID(groups []TagRuleGroup, globalID string) bool {
	for _, g := range groups {
		if g.GlobalID == globalID {
			return true
		}
	}
	return false
}
