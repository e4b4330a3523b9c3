// Package parser turns fetched HTML into structured component records.
package parser

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FranksOps/scout/internal/target"
	"github.com/FranksOps/scout/pkg/result"
)

// Failure codes returned by parsers.
const (
	CodeEmpty   = "empty"
	CodeNoTitle = "no_title"
	CodeParse   = "parse"
)

// DefaultSite tags items parsed from the default base URL.
const DefaultSite = "chipdip"

// Item is one component found on a page.
type Item struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	MPN         string            `json:"mpn,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	Image       string            `json:"image,omitempty"`
	Description string            `json:"description,omitempty"`
	Package     string            `json:"package,omitempty"`
	Stock       *int              `json:"stock,omitempty"`
	PriceRUB    *int              `json:"price_min_rub,omitempty"`
	Specs       map[string]string `json:"specs,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Datasheets  []string          `json:"pdfs,omitempty"`
	Source      string            `json:"source"`
}

// Document is the parsed form of one page. It is the payload of an enrich
// event.
type Document struct {
	Source string      `json:"source"`
	Kind   target.Kind `json:"kind"`
	Items  []Item      `json:"items"`
}

// Parser extracts a Document from a page body. Expected failures (no items,
// no title, unreadable HTML) come back as an Err result.
type Parser interface {
	Parse(body []byte, sourceURL string) result.Result[Document]
}

// Set picks a parser by target kind.
type Set map[target.Kind]Parser

// For returns the parser registered for kind.
func (s Set) For(kind target.Kind) (Parser, bool) {
	p, ok := s[kind]
	return p, ok
}

// Default returns the listing parser for search targets and the product
// parser for product targets, resolving relative links against baseURL.
func Default(baseURL string) Set {
	if baseURL == "" {
		baseURL = target.DefaultBaseURL
	}
	return Set{
		target.KindSearch:  &Listing{BaseURL: baseURL, Site: DefaultSite},
		target.KindProduct: &Product{},
	}
}

var (
	mpnRe   = regexp.MustCompile(`(?i)[A-Z0-9][A-Z0-9\-._]{2,}`)
	tokenRe = regexp.MustCompile(`[A-Z0-9\-]+`)
	spaceRe = regexp.MustCompile(`\s+`)
)

var packageKeys = []string{"SOD", "SOT", "DO", "TO", "QFN", "TSSOP", "SOIC"}

var brands = []string{
	"TAIWAN SEMICONDUCTOR", "VISHAY", "MICROSEMI", "NXP", "INFINEON", "TOSHIBA",
	"ROHM", "DIOTEC", "FAIRCHILD", "EVERLIGHT", "ST", "ON", "TI",
}

func pickMPN(title string) string {
	return strings.ToUpper(mpnRe.FindString(title))
}

func pickPackage(title string) string {
	for _, tok := range tokenRe.FindAllString(strings.ToUpper(title), -1) {
		for _, k := range packageKeys {
			if strings.Contains(tok, k) {
				return tok
			}
		}
	}
	return ""
}

// guessBrand matches brand names as whole words so short marks like "ON"
// do not hit every title.
func guessBrand(text string) string {
	words := " " + strings.Join(strings.FieldsFunc(strings.ToUpper(text), notAlnum), " ") + " "
	for _, b := range brands {
		if strings.Contains(words, " "+b+" ") {
			return b
		}
	}
	return ""
}

func notAlnum(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// appendUnique appends v unless it is empty, already present or the slice
// has reached max.
func appendUnique(list []string, v string, max int) []string {
	if v == "" || len(list) >= max {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
