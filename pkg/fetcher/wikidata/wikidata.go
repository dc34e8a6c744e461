// Package wikidata resolves main domains to Wikidata items via the official
// website property (P856).
package wikidata

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
	ID = "wikidata-domain-to-id"

	// DefaultEndpoint is the public SPARQL endpoint.
	DefaultEndpoint = "https://query.wikidata.org/sparql"

	entityPrefix = "http://www.wikidata.org/entity/"
)

// Output tags.
const (
	TagID    = "wikidata-id"
	TagLabel = "wikidata-label"
)

// Config holds configuration for the Wikidata fetcher.
type Config struct {
	// Endpoint is the SPARQL endpoint. Defaults to DefaultEndpoint if empty.
	Endpoint string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client
}

// Fetcher maps a main domain to its Wikidata item id and label.
type Fetcher struct {
	endpoint   string
	httpClient *http.Client
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// New creates a Wikidata fetcher.
func New(cfg Config) *Fetcher {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{endpoint: endpoint, httpClient: client}
}

func (f *Fetcher) ID() string { return ID }

func (f *Fetcher) Requirements() []fetcher.Requirement {
	return []fetcher.Requirement{
		// The last label must start with a letter, which keeps dotted IP
		// addresses away from the public endpoint.
		{Tag: "browse-main-domain", Regex: `^(?P<domain>(?:[a-z0-9-]+\.)+[a-z][a-z0-9-]*)$`},
	}
}

func (f *Fetcher) Outputs() []string {
	return []string{TagID, TagLabel}
}

func (f *Fetcher) CacheKey(match *tags.Match) (string, error) {
	domain := match.Captures["domain"]
	if domain == "" {
		return "", errors.New("missing domain capture")
	}
	return domain, nil
}

func (f *Fetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("query", buildQuery(key))
	return fetcher.GetJSON(ctx, f.httpClient, f.endpoint+"?"+q.Encode())
}

func (f *Fetcher) Process(data []byte) ([]tags.TagValue, error) {
	var resp sparqlResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding sparql response: %w", err)
	}
	if len(resp.Results.Bindings) == 0 {
		return nil, nil
	}

	binding := resp.Results.Bindings[0]
	var out []tags.TagValue
	if item := binding["item"].Value; strings.HasPrefix(item, entityPrefix) {
		out = append(out, tags.TagValue{Tag: TagID, Value: strings.TrimPrefix(item, entityPrefix)})
	}
	if label := binding["itemLabel"].Value; label != "" {
		out = append(out, tags.TagValue{Tag: TagLabel, Value: label})
	}
	return out, nil
}

// buildQuery matches the usual spellings of a site's official website.
// domain is restricted by the requirement regex, so it is safe to inline.
func buildQuery(domain string) string {
	sites := make([]string, 0, 4)
	for _, scheme := range []string{"https", "http"} {
		for _, host := range []string{domain, "www." + domain} {
			sites = append(sites, fmt.Sprintf("<%s://%s/>", scheme, host))
		}
	}
	return fmt.Sprintf(`SELECT ?item ?itemLabel WHERE {
  VALUES ?website { %s }
  ?item wdt:P856 ?website .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT 1`, strings.Join(sites, " "))
}

var _ fetcher.External = (*Fetcher)(nil)
