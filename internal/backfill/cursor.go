// Package backfill drives paginated historical sync and rate-limited
// enrichment jobs against the commerce platform.
package backfill

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 250
)

// SyncCursor is the caller-held resume point of a backfill. An empty
// PageInfo means "first page".
type SyncCursor struct {
	PageInfo string `json:"pageInfo,omitempty"`
	Limit    int    `json:"limit"`
}

// ClampLimit bounds a page size to 1..MaxLimit; zero selects the default
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// NextPageInfo extracts the page_info token of the rel="next" entry of a
// Link header. It returns "" when there is no next page.
func NextPageInfo(h http.Header) string {
	for _, value := range h.Values("Link") {
		for _, link := range parseLinks(value) {
			if link.rel != "next" {
				continue
			}
			u, err := url.Parse(link.target)
			if err != nil {
				return ""
			}
			return u.Query().Get("page_info")
		}
	}
	return ""
}

type linkEntry struct {
	target string
	rel    string
}

// parseLinks splits `<url>; rel="next", <url>; rel="previous"`. Targets
// are delimited by angle brackets so commas inside them are safe.
func parseLinks(value string) []linkEntry {
	var out []linkEntry
	rest := value
	for {
		start := strings.IndexByte(rest, '<')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(rest[start:], '>')
		if end < 0 {
			return out
		}
		entry := linkEntry{target: rest[start+1 : start+end]}
		rest = rest[start+end+1:]

		params := rest
		if next := strings.IndexByte(rest, '<'); next >= 0 {
			params = rest[:next]
		}
		for _, param := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(k), "rel") {
				continue
			}
			entry.rel = strings.ToLower(strings.Trim(strings.TrimSpace(v), `",`))
		}
		out = append(out, entry)
	}
}
