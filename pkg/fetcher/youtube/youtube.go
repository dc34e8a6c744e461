// Package youtube fetches video metadata through YouTube's oEmbed endpoint.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/tags"
)

const (
	// ID is the fetcher id rules refer to.
	ID = "youtube-meta-json"

	// DefaultBaseURL is the public oEmbed host.
	DefaultBaseURL = "https://www.youtube.com"
)

// Output tags.
const (
	TagTitle      = "video-title"
	TagChannel    = "video-channel"
	TagChannelURL = "video-channel-url"
)

// Config holds configuration for the YouTube fetcher.
type Config struct {
	// BaseURL is the oEmbed host. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client
}

// Fetcher looks up video titles and channels by video id.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	AuthorURL  string `json:"author_url"`
}

// New creates a YouTube fetcher.
func New(cfg Config) *Fetcher {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{baseURL: baseURL, httpClient: client}
}

func (f *Fetcher) ID() string { return ID }

func (f *Fetcher) Requirements() []fetcher.Requirement {
	return []fetcher.Requirement{{
		Tag:   "browse-url",
		Regex: `^https?://(?:www\.|m\.)?(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/)(?P<id>[A-Za-z0-9_-]{11})(?:[&?#].*)?$`,
	}}
}

func (f *Fetcher) Outputs() []string {
	return []string{TagTitle, TagChannel, TagChannelURL}
}

func (f *Fetcher) CacheKey(match *tags.Match) (string, error) {
	id := match.Captures["id"]
	if id == "" {
		return "", errors.New("missing video id capture")
	}
	return id, nil
}

func (f *Fetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	watchURL := "https://www.youtube.com/watch?v=" + url.QueryEscape(key)
	q := url.Values{}
	q.Set("format", "json")
	q.Set("url", watchURL)

	return fetcher.GetJSON(ctx, f.httpClient, f.baseURL+"/oembed?"+q.Encode())
}

func (f *Fetcher) Process(data []byte) ([]tags.TagValue, error) {
	var resp oembedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding oembed response: %w", err)
	}

	var out []tags.TagValue
	if resp.Title != "" {
		out = append(out, tags.TagValue{Tag: TagTitle, Value: resp.Title})
	}
	if resp.AuthorName != "" {
		out = append(out, tags.TagValue{Tag: TagChannel, Value: resp.AuthorName})
	}
	if resp.AuthorURL != "" {
		out = append(out, tags.TagValue{Tag: TagChannelURL, Value: resp.AuthorURL})
	}
	return out, nil
}

var _ fetcher.External = (*Fetcher)(nil)
