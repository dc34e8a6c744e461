package rules

import (
	"regexp"

	"github.com/papercomputeco/tracks/pkg/tags"
)

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}|\$([A-Za-z0-9_]+)`)

// NewTag is a (tag, value) template. Both fields may contain $name or
// ${name} placeholders.
type NewTag struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// Expand substitutes placeholders from env. Names missing from env expand to
// the empty string.
func (n NewTag) Expand(env map[string]string) tags.TagValue {
	return tags.TagValue{
		Tag:   ExpandTemplate(n.Tag, env),
		Value: ExpandTemplate(n.Value, env),
	}
}

// ExpandTemplate substitutes $name and ${name} placeholders in s.
func ExpandTemplate(s string, env map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		return env[name]
	})
}

// ExpandAll expands every template.
func ExpandAll(templates []NewTag, env map[string]string) []tags.TagValue {
	out := make([]tags.TagValue, 0, len(templates))
	for _, t := range templates {
		out = append(out, t.Expand(env))
	}
	return out
}
