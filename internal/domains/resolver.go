// Package domains turns browser URLs into the normalized domain names that
// activity events are keyed by.
package domains

import (
	"net/url"
	"strings"
)

var internalSchemes = map[string]struct{}{
	"about":            {},
	"blob":             {},
	"chrome":           {},
	"chrome-extension": {},
	"chrome-search":    {},
	"chrome-untrusted": {},
	"data":             {},
	"devtools":         {},
	"edge":             {},
	"file":             {},
	"javascript":       {},
	"moz-extension":    {},
	"resource":         {},
	"safari-extension": {},
	"view-source":      {},
}

// Resolve returns the lower-cased host of rawURL without a leading "www.".
// It reports false for URLs that cannot be tracked: unparsable input, browser
// or extension internal pages, and hosts without a dot.
func Resolve(rawURL string) (string, bool) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", false
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	if _, internal := internalSchemes[strings.ToLower(parsed.Scheme)]; internal {
		return "", false
	}
	return normalizeHost(parsed.Hostname())
}

func normalizeHost(host string) (string, bool) {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") {
		return "", false
	}
	if strings.HasPrefix(host, ".") || strings.Contains(host, "..") {
		return "", false
	}
	return host, true
}

// NormalizeList cleans user supplied domain entries. Entries may be bare
// domains or full URLs; invalid and duplicate entries are dropped and the
// first-seen order is kept.
func NormalizeList(entries []string) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		domain, ok := normalizeEntry(entry)
		if !ok {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, domain)
	}
	return out
}

func normalizeEntry(entry string) (string, bool) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", false
	}
	if strings.Contains(entry, "://") {
		return Resolve(entry)
	}
	host, _, _ := strings.Cut(entry, "/")
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	return normalizeHost(host)
}
