// Package urldomain derives domain tags from visited URLs.
package urldomain

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/tags"
)

// ID is the fetcher id rules refer to.
const ID = "url-domain-matcher"

// Output tags.
const (
	TagDomain     = "browse-domain"
	TagMainDomain = "browse-main-domain"
	TagScheme     = "browse-url-scheme"
)

// Fetcher splits browse-url into its host and registrable main domain
// (eTLD+1, e.g. "www.youtube.com" -> "youtube.com").
type Fetcher struct{}

// New returns the url domain matcher.
func New() *Fetcher {
	return &Fetcher{}
}

func (f *Fetcher) ID() string { return ID }

func (f *Fetcher) Requirements() []fetcher.Requirement {
	return []fetcher.Requirement{
		{Tag: "browse-url", Regex: `^(?P<url>[A-Za-z][A-Za-z0-9+.-]*://.+)$`},
	}
}

func (f *Fetcher) Outputs() []string {
	return []string{TagDomain, TagMainDomain, TagScheme}
}

func (f *Fetcher) Derive(match *tags.Match, _ *tags.Tags) ([]tags.TagValue, error) {
	u, err := url.Parse(match.Captures["url"])
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("url %q has no host", match.Captures["url"])
	}

	out := []tags.TagValue{
		{Tag: TagScheme, Value: strings.ToLower(u.Scheme)},
		{Tag: TagDomain, Value: host},
	}

	// IP hosts have no registrable domain.
	if _, err := netip.ParseAddr(host); err == nil {
		return out, nil
	}

	main, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// localhost and bare suffixes have no eTLD+1.
		main = host
	}
	return append(out, tags.TagValue{Tag: TagMainDomain, Value: main}), nil
}

var _ fetcher.Simple = (*Fetcher)(nil)
