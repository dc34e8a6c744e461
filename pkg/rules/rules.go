// Package rules defines the serializable tag rule model: rule groups,
// the closed set of rule variants, and new-tag templates.
package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Rule variant type names as they appear in the "type" discriminator.
const (
	TypeHasTag          = "HasTag"
	TypeExactTagValue   = "ExactTagValue"
	TypeTagValuePrefix  = "TagValuePrefix"
	TypeTagRegex        = "TagRegex"
	TypeInternalFetcher = "InternalFetcher"
	TypeExternalFetcher = "ExternalFetcher"
)

// ErrUnknownRuleType is returned when decoding a rule with an unrecognized
// "type" discriminator.
var ErrUnknownRuleType = errors.New("unknown rule type")

// Rule is one of HasTag, ExactTagValue, TagValuePrefix, TagRegex,
// InternalFetcher or ExternalFetcher.
type Rule interface {
	// Type returns the variant discriminator.
	Type() string

	// Describe returns a short human readable form for provenance.
	Describe() string

	isRule()
}

// HasTag fires when Tag has any value.
//
// Placeholders: $value (the first value of Tag).
type HasTag struct {
	Tag     string   `json:"tag"`
	NewTags []NewTag `json:"new_tags"`
}

// ExactTagValue fires when Tag carries exactly Value.
//
// Placeholders: $value.
type ExactTagValue struct {
	Tag     string   `json:"tag"`
	Value   string   `json:"value"`
	NewTags []NewTag `json:"new_tags"`
}

// TagValuePrefix fires when some value of Tag starts with Prefix.
//
// Placeholders: $value, $prefix, $suffix (the value with Prefix removed).
type TagValuePrefix struct {
	Tag     string   `json:"tag"`
	Prefix  string   `json:"prefix"`
	NewTags []NewTag `json:"new_tags"`
}

// TagRegex fires only when every entry matches some value of its tag.
//
// Placeholders: every named capture group of every regex.
type TagRegex struct {
	Regexes []TagRegexEntry `json:"regexes"`
	NewTags []NewTag        `json:"new_tags"`
}

// TagRegexEntry pairs a tag with an anchored regular expression.
type TagRegexEntry struct {
	Tag   string `json:"tag"`
	Regex string `json:"regex"`
}

// InternalFetcher delegates matching and derivation to a registered
// simple (local) fetcher.
type InternalFetcher struct {
	FetcherID string `json:"fetcher_id"`
}

// ExternalFetcher delegates to a registered network fetcher through the
// fetch cache.
type ExternalFetcher struct {
	FetcherID string `json:"fetcher_id"`
}

func (HasTag) Type() string          { return TypeHasTag }
func (ExactTagValue) Type() string   { return TypeExactTagValue }
func (TagValuePrefix) Type() string  { return TypeTagValuePrefix }
func (TagRegex) Type() string        { return TypeTagRegex }
func (InternalFetcher) Type() string { return TypeInternalFetcher }
func (ExternalFetcher) Type() string { return TypeExternalFetcher }

func (HasTag) isRule()          {}
func (ExactTagValue) isRule()   {}
func (TagValuePrefix) isRule()  {}
func (TagRegex) isRule()        {}
func (InternalFetcher) isRule() {}
func (ExternalFetcher) isRule() {}

func (r HasTag) Describe() string {
	return fmt.Sprintf("HasTag(%s)", r.Tag)
}

func (r ExactTagValue) Describe() string {
	return fmt.Sprintf("ExactTagValue(%s=%s)", r.Tag, r.Value)
}

func (r TagValuePrefix) Describe() string {
	return fmt.Sprintf("TagValuePrefix(%s^=%s)", r.Tag, r.Prefix)
}

func (r TagRegex) Describe() string {
	parts := make([]string, 0, len(r.Regexes))
	for _, e := range r.Regexes {
		parts = append(parts, e.Tag+"~"+e.Regex)
	}
	return fmt.Sprintf("TagRegex(%s)", strings.Join(parts, " && "))
}

func (r InternalFetcher) Describe() string {
	return fmt.Sprintf("InternalFetcher(%s)", r.FetcherID)
}

func (r ExternalFetcher) Describe() string {
	return fmt.Sprintf("ExternalFetcher(%s)", r.FetcherID)
}

// MarshalRule encodes r as a JSON object with a leading "type" field.
func MarshalRule(r Rule) ([]byte, error) {
	if r == nil {
		return nil, errors.New("cannot marshal nil rule")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(r.Type())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalRule decodes a JSON object produced by MarshalRule.
func UnmarshalRule(data []byte) (Rule, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case TypeHasTag:
		return decodeRule[HasTag](data)
	case TypeExactTagValue:
		return decodeRule[ExactTagValue](data)
	case TypeTagValuePrefix:
		return decodeRule[TagValuePrefix](data)
	case TypeTagRegex:
		return decodeRule[TagRegex](data)
	case TypeInternalFetcher:
		return decodeRule[InternalFetcher](data)
	case TypeExternalFetcher:
		return decodeRule[ExternalFetcher](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, probe.Type)
	}
}

func decodeRule[T Rule](data []byte) (Rule, error) {
	var r T
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding %s rule: %w", r.Type(), err)
	}
	return r, nil
}
