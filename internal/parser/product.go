package parser

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/FranksOps/scout/internal/target"
	"github.com/FranksOps/scout/pkg/result"
	"github.com/PuerkitoBio/goquery"
)

const maxLinks = 8

var imagePathRe = regexp.MustCompile(`/images?/`)

// Product parses a single product page.
type Product struct{}

// Parse implements Parser.
func (p *Product) Parse(body []byte, sourceURL string) result.Result[Document] {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return result.Err[Document]("read html: "+err.Error(), CodeParse)
	}

	title := collapse(doc.Find("h1").First().Text())
	if title == "" {
		return result.Err[Document]("product title not found", CodeNoTitle)
	}

	base, _ := url.Parse(sourceURL)

	var pdfs []string
	doc.Find(`a[href$=".pdf"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		pdfs = appendUnique(pdfs, resolve(base, href), maxLinks)
	})

	var images []string
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if imagePathRe.MatchString(src) {
			images = appendUnique(images, resolve(base, src), maxLinks)
		}
	})

	specs := make(map[string]string)
	doc.Find("table, .specs, .characteristics").Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("th,td")
		k := collapse(cells.Eq(0).Text())
		v := collapse(cells.Eq(1).Text())
		if k != "" && v != "" {
			specs[strings.ToLower(k)] = v
		}
	})

	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	description = strings.TrimSpace(description)
	if description == "" {
		description = collapse(doc.Find("p").First().Text())
	}

	item := Item{
		URL:         sourceURL,
		Title:       title,
		MPN:         pickMPN(title),
		Brand:       guessBrand(title + " " + doc.Find("body").Text()),
		Description: description,
		Package:     pickPackage(title),
		Images:      images,
		Datasheets:  pdfs,
		Source:      sourceURL,
	}
	if len(images) > 0 {
		item.Image = images[0]
	}
	if len(specs) > 0 {
		item.Specs = specs
	}

	return result.Ok(Document{Source: sourceURL, Kind: target.KindProduct, Items: []Item{item}})
}
