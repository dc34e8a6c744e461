package fetcher

import (
	"fmt"
	"time"
)

// DefaultRetryAfter is used for temporary failures that carry no hint.
const DefaultRetryAfter = time.Hour

// TemporaryError is a failure worth retrying after RetryAfter.
type TemporaryError struct {
	RetryAfter time.Duration
	Reason     string
}

func (e *TemporaryError) Error() string {
	return fmt.Sprintf("temporary fetch failure (retry after %s): %s", e.RetryAfter, e.Reason)
}

// PermanentError is a failure that will not change on retry.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return "permanent fetch failure: " + e.Reason
}

// UnknownFetcherError is returned when a rule references an unregistered id.
type UnknownFetcherError struct {
	ID   string
	Kind string
}

func (e UnknownFetcherError) Error() string {
	return fmt.Sprintf("unknown %s fetcher: %q", e.Kind, e.ID)
}

// OutputViolationError is returned when a fetcher produces a tag it did not
// declare.
type OutputViolationError struct {
	FetcherID string
	Tag       string
}

func (e OutputViolationError) Error() string {
	return fmt.Sprintf("fetcher %s produced undeclared tag %q", e.FetcherID, e.Tag)
}
