package parser

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/FranksOps/scout/internal/target"
	"github.com/FranksOps/scout/pkg/result"
	"github.com/PuerkitoBio/goquery"
)

var (
	priceRe = regexp.MustCompile(`(?i)(\d[\d\s\x{00A0}]*?)[\s\x{00A0}]*руб`)
	stockRe = regexp.MustCompile(`(?i)(\d[\d\s\x{00A0}]*?)[\s\x{00A0}]*шт`)
	digitRe = regexp.MustCompile(`\D`)
)

const descriptionLimit = 280

// Listing parses search result pages. Every link to a product page is an
// item; the surrounding card supplies price, stock, image and description.
type Listing struct {
	// BaseURL resolves relative links when the source URL is unusable.
	BaseURL string
	// Site is recorded as the Source of every item.
	Site string
}

// Parse implements Parser.
func (l *Listing) Parse(body []byte, sourceURL string) result.Result[Document] {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return result.Err[Document]("read html: "+err.Error(), CodeParse)
	}

	base := l.base(sourceURL)
	var items []Item
	index := make(map[string]int)

	doc.Find(`a[href^="/product/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link := resolve(base, href)
		if link == "" {
			return
		}

		row := a.Closest("div,li,tr,article")
		title := collapse(a.Text())
		if title == "" {
			title = collapse(row.Find("h3,h2").First().Text())
		}

		// Cards often link the same product from the image and the title.
		if i, seen := index[link]; seen {
			if items[i].Title == "" && title != "" {
				items[i].Title = title
				items[i].MPN = pickMPN(title)
				items[i].Brand = guessBrand(title)
				items[i].Package = pickPackage(title)
			}
			return
		}

		text := row.Text()
		item := Item{
			URL:         link,
			Title:       title,
			MPN:         pickMPN(title),
			Brand:       guessBrand(title),
			Package:     pickPackage(title),
			Description: clip(collapse(row.Find("p, .desc, .description").First().Text()), descriptionLimit),
			Stock:       matchInt(stockRe, text),
			PriceRUB:    matchInt(priceRe, text),
			Source:      l.Site,
		}
		if src, ok := row.Find("img").First().Attr("src"); ok {
			item.Image = resolve(base, src)
		}

		index[link] = len(items)
		items = append(items, item)
	})

	if len(items) == 0 {
		return result.Err[Document]("no items parsed", CodeEmpty)
	}
	return result.Ok(Document{Source: sourceURL, Kind: target.KindSearch, Items: items})
}

func (l *Listing) base(sourceURL string) *url.URL {
	if u, err := url.Parse(sourceURL); err == nil && u.IsAbs() {
		return u
	}
	base := l.BaseURL
	if base == "" {
		base = target.DefaultBaseURL
	}
	u, _ := url.Parse(base)
	return u
}

func matchInt(re *regexp.Regexp, text string) *int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(digitRe.ReplaceAllString(strings.TrimSpace(m[1]), ""))
	if err != nil {
		return nil
	}
	return &n
}
