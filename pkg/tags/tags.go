// Package tags provides the multi-valued tag store that serves as the fact
// base for one event's derivation.
package tags

import (
	"encoding/json"
	"sort"
	"strings"
)

// TagValue is a single (tag, value) pair.
type TagValue struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// Key returns the "tag:value" form used to index provenance.
func (tv TagValue) Key() string {
	return tv.Tag + ":" + tv.Value
}

func (tv TagValue) String() string {
	return tv.Key()
}

// Tags maps a tag name to its ordered, distinct values. Tag names keep the
// order in which they were first added. A Tags value is owned by a single
// evaluation and is not safe for concurrent use.
type Tags struct {
	order  []string
	values map[string][]string
	total  int
}

// New returns an empty Tags.
func New() *Tags {
	return &Tags{values: make(map[string][]string)}
}

// FromMap builds a Tags from a plain map. Tag names are added in sorted
// order so the result is deterministic.
func FromMap(m map[string][]string) *Tags {
	t := New()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range m[name] {
			t.Add(name, v)
		}
	}
	return t
}

// Add appends value to tag. Returns false when the value is already present.
func (t *Tags) Add(tag, value string) bool {
	existing, ok := t.values[tag]
	if !ok {
		t.order = append(t.order, tag)
	}
	for _, v := range existing {
		if v == value {
			return false
		}
	}
	t.values[tag] = append(existing, value)
	t.total++
	return true
}

// AddTagValue is Add for a TagValue.
func (t *Tags) AddTagValue(tv TagValue) bool {
	return t.Add(tv.Tag, tv.Value)
}

// Extend appends every value of other, returning the number of new values.
func (t *Tags) Extend(other *Tags) int {
	if other == nil {
		return 0
	}
	added := 0
	for _, name := range other.order {
		for _, v := range other.values[name] {
			if t.Add(name, v) {
				added++
			}
		}
	}
	return added
}

// ExtendValues appends every TagValue, returning the number of new values.
func (t *Tags) ExtendValues(tvs []TagValue) int {
	added := 0
	for _, tv := range tvs {
		if t.AddTagValue(tv) {
			added++
		}
	}
	return added
}

// Has reports whether tag has at least one value.
func (t *Tags) Has(tag string) bool {
	return len(t.values[tag]) > 0
}

// HasValue reports whether tag carries exactly value.
func (t *Tags) HasValue(tag, value string) bool {
	for _, v := range t.values[tag] {
		if v == value {
			return true
		}
	}
	return false
}

// GetOneValueOf returns the first inserted value of tag.
func (t *Tags) GetOneValueOf(tag string) (string, bool) {
	vs := t.values[tag]
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// GetAllValuesOf returns the values of tag in insertion order. The returned
// slice must not be modified.
func (t *Tags) GetAllValuesOf(tag string) []string {
	return t.values[tag]
}

// TotalValueCount is the number of (tag, value) pairs.
func (t *Tags) TotalValueCount() int {
	return t.total
}

// TagCount is the number of distinct tag names.
func (t *Tags) TagCount() int {
	return len(t.order)
}

// Names returns the tag names in first-insertion order.
func (t *Tags) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// TagValues flattens the store into pairs, grouped by tag in insertion order.
func (t *Tags) TagValues() []TagValue {
	out := make([]TagValue, 0, t.total)
	for _, name := range t.order {
		for _, v := range t.values[name] {
			out = append(out, TagValue{Tag: name, Value: v})
		}
	}
	return out
}

// Clone returns an independent copy.
func (t *Tags) Clone() *Tags {
	c := New()
	c.Extend(t)
	return c
}

// Map returns a copy as a plain map.
func (t *Tags) Map() map[string][]string {
	m := make(map[string][]string, len(t.order))
	for _, name := range t.order {
		vs := make([]string, len(t.values[name]))
		copy(vs, t.values[name])
		m[name] = vs
	}
	return m
}

func (t *Tags) String() string {
	parts := make([]string, 0, t.total)
	for _, tv := range t.TagValues() {
		parts = append(parts, tv.Key())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the store as an object of tag -> values.
func (t *Tags) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Map())
}

// UnmarshalJSON decodes an object of tag -> values.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*t = *FromMap(m)
	return nil
}
