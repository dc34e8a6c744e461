package storage

import "fmt"

// NotFoundError is returned when a keyed record doesn't exist in the store.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "record"
	}
	if e.Key == "" {
		return kind + " not found"
	}
	return fmt.Sprintf("%s not found: %s", kind, e.Key)
}

// Kinds used in NotFoundError.
const (
	KindEvent      = "event"
	KindFetchCache = "fetch cache entry"
	KindRuleGroup  = "rule group"
	KindDay        = "extraction day"
)
