package crawler

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/model"
)

// ErrContentNotFound is returned when none of the content selectors match.
var ErrContentNotFound = errors.New("content region not found")

// ParseListEntries extracts the entries of one listing page.
// Titles are whitespace collapsed and links are resolved against the site
// URL. Entries without a link are dropped; filtering by the detail URL
// pattern is left to the caller.
func ParseListEntries(r io.Reader, site config.SiteConfig) ([]model.ListEntry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	base, err := url.Parse(site.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid site url %q: %w", site.URL, err)
	}

	entries := make([]model.ListEntry, 0)
	doc.Find(site.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		title := item.Text()
		if site.TitleSelector != "" {
			title = item.Find(site.TitleSelector).First().Text()
		}

		link := item.Find(site.LinkSelector).First()
		if goquery.NodeName(item) == "a" && link.Length() == 0 {
			link = item
		}
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		entries = append(entries, model.ListEntry{
			Title: collapseWhitespace(title),
			URL:   resolveURL(base, href),
		})
	})
	return entries, nil
}

// ExtractDetail extracts the title, content region and image URLs of a
// detail page. The first content selector that matches wins.
func ExtractDetail(r io.Reader, pageURL string, site config.SiteConfig) (*model.DetailPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}

	var content *goquery.Selection
	for _, selector := range site.ContentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			content = sel
			break
		}
	}
	if content == nil {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, pageURL)
	}

	html, err := goquery.OuterHtml(content)
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}

	title := collapseWhitespace(doc.Find(site.DetailTitleSelector).First().Text())
	if title == "" {
		title = collapseWhitespace(doc.Find("title").First().Text())
	}

	return &model.DetailPage{
		URL:     pageURL,
		Title:   title,
		Content: html,
		Assets:  extractImages(content, base, site),
	}, nil
}

// extractImages returns the absolute image URLs inside region in document
// order without duplicates.
func extractImages(region *goquery.Selection, base *url.URL, site config.SiteConfig) []string {
	selector := site.ImageSelector
	if selector == "" {
		selector = "img"
	}
	attrs := site.ImageAttributes
	if len(attrs) == 0 {
		attrs = []string{"data-src", "src"}
	}

	seen := make(map[string]struct{})
	images := make([]string, 0)
	region.Find(selector).Each(func(_ int, img *goquery.Selection) {
		for _, attr := range attrs {
			v, ok := img.Attr(attr)
			v = strings.TrimSpace(v)
			if !ok || v == "" || strings.HasPrefix(v, "data:") {
				continue
			}
			abs := resolveURL(base, v)
			if _, dup := seen[abs]; !dup {
				seen[abs] = struct{}{}
				images = append(images, abs)
			}
			return
		}
	})
	return images
}

// NormalizeTitle is the key used to detect duplicate titles within a run:
// NFKC normalized and whitespace collapsed.
func NormalizeTitle(title string) string {
	return collapseWhitespace(norm.NFKC.String(title))
}

// collapseWhitespace replaces every run of whitespace with one space and trims.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL resolves href against base and drops the fragment.
// An unparsable href is returned unchanged.
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String()
}
