package adapter

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
)

const maxFeedContent = 2000

// Feed fetches RSS 2.0, RDF (RSS 1.0) and Atom feeds. The format is detected
// from the document root.
type Feed struct {
	base
}

// NewFeed creates the feed adapter.
func NewFeed(client scraper.Doer, opts Options, logger *slog.Logger) *Feed {
	return &Feed{base: newBase(client, opts, logger)}
}

func (f *Feed) Fetch(ctx context.Context, src model.Source) ([]model.RawItem, error) {
	resp, err := f.get(ctx, scraper.Request{URL: src.URL, Headers: src.Config.StringMap("headers")})
	if err != nil {
		return nil, err
	}

	items, err := parseFeed(resp.Body)
	if err != nil {
		return nil, err
	}

	pause(ctx, f.opts.Delay)
	return items, nil
}

func parseFeed(body []byte) ([]model.RawItem, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, err
	}

	switch root {
	case "rss":
		var doc rssFeed
		if err := decodeXML(body, &doc); err != nil {
			return nil, parseErr("rss: %v", err)
		}
		return convertRSS(doc.Channel.Title, doc.Channel.Items), nil
	case "RDF":
		var doc rdfFeed
		if err := decodeXML(body, &doc); err != nil {
			return nil, parseErr("rdf: %v", err)
		}
		return convertRSS(doc.Channel.Title, doc.Items), nil
	case "feed":
		var doc atomFeed
		if err := decodeXML(body, &doc); err != nil {
			return nil, parseErr("atom: %v", err)
		}
		return convertAtom(doc), nil
	default:
		return nil, parseErr("unrecognized feed root <%s>", root)
	}
}

// rootElement returns the local name of the first element in the document.
func rootElement(body []byte) (string, error) {
	dec := newDecoder(body)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", parseErr("empty feed document")
			}
			return "", parseErr("feed: %v", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// newDecoder accepts non-UTF-8 encodings declared in the XML prolog.
func newDecoder(body []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

func decodeXML(body []byte, v any) error {
	return newDecoder(body).Decode(v)
}

// RSS 2.0 and RDF share the item shape. Tags match on local name so the
// dc: and content: namespaced elements resolve without namespace plumbing.
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rdfFeed struct {
	XMLName xml.Name   `xml:"RDF"`
	Channel rssChannel `xml:"channel"`
	Items   []rssItem  `xml:"item"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Encoded     string   `xml:"encoded"`
	GUID        string   `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
	DCDate      string   `xml:"date"`
	Author      string   `xml:"author"`
	Creator     string   `xml:"creator"`
	Categories  []string `xml:"category"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Links     []atomLink  `xml:"link"`
	Summary   string      `xml:"summary"`
	Content   atomContent `xml:"content"`
	Published string      `xml:"published"`
	Updated   string      `xml:"updated"`
	Author    struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomContent struct {
	Type  string `xml:"type,attr"`
	Text  string `xml:",chardata"`
	Inner string `xml:",innerxml"`
}

func (c atomContent) body() string {
	if c.Type == "xhtml" {
		return c.Inner
	}
	return c.Text
}

func convertRSS(feedTitle string, items []rssItem) []model.RawItem {
	out := make([]model.RawItem, 0, len(items))
	for _, it := range items {
		link := strings.TrimSpace(it.Link)
		author := it.Author
		if author == "" {
			author = it.Creator
		}
		out = append(out, model.RawItem{
			ExternalID:  firstNonEmpty(strings.TrimSpace(it.GUID), link),
			Title:       firstNonEmpty(strings.TrimSpace(it.Title), "No title"),
			Content:     feedBody(firstNonEmpty(it.Description, it.Encoded)),
			URL:         link,
			Author:      strings.TrimSpace(author),
			PublishedAt: feedDate(it.PubDate, it.DCDate),
			Metadata:    feedMetadata(feedTitle, it.Categories),
		})
	}
	return out
}

func convertAtom(doc atomFeed) []model.RawItem {
	out := make([]model.RawItem, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		link := e.link()
		tags := make([]string, 0, len(e.Categories))
		for _, c := range e.Categories {
			if c.Term != "" {
				tags = append(tags, c.Term)
			}
		}
		out = append(out, model.RawItem{
			ExternalID:  firstNonEmpty(strings.TrimSpace(e.ID), link),
			Title:       firstNonEmpty(strings.TrimSpace(e.Title), "No title"),
			Content:     feedBody(firstNonEmpty(e.Summary, e.Content.body())),
			URL:         link,
			Author:      strings.TrimSpace(e.Author.Name),
			PublishedAt: feedDate(e.Published, e.Updated),
			Metadata:    feedMetadata(doc.Title, tags),
		})
	}
	return out
}

// link prefers the alternate link; Atom entries often carry several.
func (e atomEntry) link() string {
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(e.Links) > 0 {
		return strings.TrimSpace(e.Links[0].Href)
	}
	return ""
}

func feedBody(raw string) string {
	return model.Truncate(scraper.PlainText(raw), maxFeedContent)
}

func feedMetadata(feedTitle string, tags []string) map[string]any {
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"feed_title": strings.TrimSpace(feedTitle),
		"tags":       tags,
	}
}

func feedDate(primary, secondary string) *time.Time {
	for _, s := range []string{primary, secondary} {
		if t, ok := parseDate(s); ok {
			return &t
		}
	}
	return nil
}

var dateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02 Jan 2006 15:04:05 MST",
	"2006-01-02",
}

// parseDate tries the date layouts commonly seen in feeds and APIs.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
