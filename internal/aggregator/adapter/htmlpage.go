package adapter

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
)

// Field limits for scraped page items, in code points.
const (
	maxPageTitle   = 500
	maxPageContent = 2000
	maxPageURL     = 1000
)

// HTMLPage extracts items from an HTML page using the source's CSS selectors.
type HTMLPage struct {
	base
}

// NewHTMLPage creates the HTML page adapter.
func NewHTMLPage(client scraper.Doer, opts Options, logger *slog.Logger) *HTMLPage {
	return &HTMLPage{base: newBase(client, opts, logger)}
}

func (h *HTMLPage) Fetch(ctx context.Context, src model.Source) ([]model.RawItem, error) {
	resp, err := h.get(ctx, scraper.Request{URL: src.URL, Headers: src.Config.StringMap("headers")})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, parseErr("html: %v", err)
	}

	items := extractItems(doc, src.URL, src.Config, h.opts.MaxItems)
	pause(ctx, h.opts.Delay)
	return items, nil
}

// extractItems applies the selectors to doc. The cap is applied to matched
// elements before untitled ones are discarded.
func extractItems(doc *goquery.Document, baseURL string, cfg model.SourceConfig, limit int) []model.RawItem {
	itemSel, titleSel, contentSel, linkSel := cfg.Selectors()

	var items []model.RawItem
	doc.Find(itemSel).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= limit {
			return false
		}

		title := textOf(s.Find(titleSel).First())
		if title == "" {
			return true
		}
		content := textOf(s.Find(contentSel).First())

		link := ""
		if href, ok := s.Find(linkSel).First().Attr("href"); ok {
			link = scraper.ResolveURL(baseURL, href)
		}

		title = model.Truncate(title, maxPageTitle)
		link = model.Truncate(link, maxPageURL)
		items = append(items, model.RawItem{
			ExternalID: firstNonEmpty(link, title),
			Title:      title,
			Content:    model.Truncate(content, maxPageContent),
			URL:        link,
		})
		return true
	})
	return items
}

func textOf(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(s.Text()), " ")
}
