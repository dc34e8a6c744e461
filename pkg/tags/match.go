package tags

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher requires some value of Tag to match Regex.
type Matcher struct {
	Tag   string
	Regex *regexp.Regexp
}

// Match is the outcome of a successful MatchMultiRegex call.
type Match struct {
	// Captures holds every named capture group across all matchers. Later
	// matchers overwrite earlier captures of the same name.
	Captures map[string]string

	// Matched holds, per matcher, the value that satisfied it.
	Matched []TagValue
}

// CompileMatcher compiles pattern for tag, rejecting patterns that are not
// anchored at both ends.
func CompileMatcher(tag, pattern string) (Matcher, error) {
	if !IsAnchored(pattern) {
		return Matcher{}, fmt.Errorf("regex for tag %q is not anchored with ^...$: %q", tag, pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Matcher{}, fmt.Errorf("compiling regex for tag %q: %w", tag, err)
	}
	return Matcher{Tag: tag, Regex: re}, nil
}

// IsAnchored reports whether pattern starts with ^ and ends with an
// unescaped $.
func IsAnchored(pattern string) bool {
	if !strings.HasPrefix(pattern, "^") || !strings.HasSuffix(pattern, "$") {
		return false
	}
	backslashes := 0
	for i := len(pattern) - 2; i >= 0 && pattern[i] == '\\'; i-- {
		backslashes++
	}
	return backslashes%2 == 0
}

// MatchMultiRegex checks every matcher against the current values of its
// tag. For each matcher the first matching value is taken; there is no
// backtracking across candidate values. If any matcher finds no value the
// whole match fails.
func (t *Tags) MatchMultiRegex(matchers []Matcher) (*Match, bool) {
	m := &Match{
		Captures: make(map[string]string),
		Matched:  make([]TagValue, 0, len(matchers)),
	}
	for _, matcher := range matchers {
		found := false
		for _, value := range t.values[matcher.Tag] {
			sub := matcher.Regex.FindStringSubmatch(value)
			if sub == nil {
				continue
			}
			for i, name := range matcher.Regex.SubexpNames() {
				if i == 0 || name == "" {
					continue
				}
				m.Captures[name] = sub[i]
			}
			m.Matched = append(m.Matched, TagValue{Tag: matcher.Tag, Value: value})
			found = true
			break
		}
		if !found {
			return nil, false
		}
	}
	return m, true
}
