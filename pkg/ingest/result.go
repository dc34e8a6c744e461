package ingest

import "fmt"

// Result contains statistics from an ingest run.
type Result struct {
	Files     int
	Records   int
	Inserted  int
	Duplicate int
	Rejected  []LineError
}

// Summary returns a human-readable summary of the ingest result.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Ingest complete: %d inserted, %d already present, %d rejected\n"+
			"Scanned %d files (%d records)",
		r.Inserted, r.Duplicate, len(r.Rejected),
		r.Files, r.Records,
	)
}
