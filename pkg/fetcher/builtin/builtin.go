// Package builtin lists the fetchers compiled into tracks.
package builtin

import (
	"net/http"
	"time"

	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/fetcher/urldomain"
	"github.com/papercomputeco/tracks/pkg/fetcher/wikidata"
	"github.com/papercomputeco/tracks/pkg/fetcher/youtube"
)

// Config configures the built-in external fetchers.
type Config struct {
	Timeout          time.Duration
	YouTubeBaseURL   string
	WikidataEndpoint string
}

// Fetchers returns every built-in fetcher.
func Fetchers(cfg Config) []fetcher.Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return []fetcher.Fetcher{
		urldomain.New(),
		youtube.New(youtube.Config{BaseURL: cfg.YouTubeBaseURL, HTTPClient: client}),
		wikidata.New(wikidata.Config{Endpoint: cfg.WikidataEndpoint, HTTPClient: client}),
	}
}
