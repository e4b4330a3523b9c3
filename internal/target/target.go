// Package target turns a free-text component query into the ordered list of
// pages the search executor should try.
package target

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultBaseURL is the catalog searched when no base URL is configured.
const DefaultBaseURL = "https://www.chipdip.ru"

// Kind discriminates how a fetched target must be parsed.
type Kind string

const (
	// KindProduct is a direct candidate page for a single part.
	KindProduct Kind = "product"
	// KindSearch is a generic search listing.
	KindSearch Kind = "search"
)

// Target is one fetchable location derived from a query.
type Target struct {
	URL  string `json:"url"`
	Kind Kind   `json:"kind"`
}

func (t Target) String() string { return t.URL }

var partNumberRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{2,}$`)

// LooksLikePartNumber reports whether q is a single alphanumeric token
// (allowing - . _) of at least three characters.
func LooksLikePartNumber(q string) bool {
	return partNumberRe.MatchString(q)
}

// Builder derives targets for one catalog.
type Builder struct {
	BaseURL string
}

// NewBuilder returns a Builder for baseURL, or DefaultBaseURL when empty.
func NewBuilder(baseURL string) Builder {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Builder{BaseURL: baseURL}
}

// Build returns the ordered targets for query. It never returns an empty
// list: an empty or unusable query still yields a search target.
//
// Part-number-like queries try the product page first, then the search
// listing, then a search with separators stripped (LM-317 -> LM317) when
// that differs.
func (b Builder) Build(query string) []Target {
	q := strings.TrimSpace(query)

	if !LooksLikePartNumber(q) {
		return []Target{b.search(q)}
	}

	targets := []Target{b.product(q), b.search(q)}
	if compact := stripSeparators(q); compact != q && len(compact) >= 3 {
		targets = append(targets, b.search(compact))
	}
	return targets
}

func (b Builder) base() string {
	if b.BaseURL == "" {
		return DefaultBaseURL
	}
	return b.BaseURL
}

func (b Builder) product(q string) Target {
	return Target{
		URL:  b.base() + "/product/" + url.PathEscape(strings.ToLower(q)),
		Kind: KindProduct,
	}
}

func (b Builder) search(q string) Target {
	return Target{
		URL:  b.base() + "/search?searchtext=" + url.QueryEscape(q),
		Kind: KindSearch,
	}
}

func stripSeparators(q string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '.', '_':
			return -1
		}
		return r
	}, q)
}
