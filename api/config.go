// Package api provides an HTTP API server for querying derived tags and
// managing rule groups.
package api

// DefaultMaxRangeDays bounds the span of one /v1/extracted request.
const DefaultMaxRangeDays = 366

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8765")
	ListenAddr string

	// MaxRangeDays is the longest from..to span /v1/extracted accepts, in
	// days. Defaults to DefaultMaxRangeDays.
	MaxRangeDays int
}
