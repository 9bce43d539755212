package scraper

import (
	stdhtml "html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"svg": true, "iframe": true, "template": true,
}

// PlainText strips markup from an HTML fragment and returns its visible text
// with runs of whitespace collapsed to single spaces. Input that is not
// markup comes back trimmed.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return collapse(strings.Join(parts, " "))
}

var strict = bluemonday.StrictPolicy()

// Sanitize removes every tag from s with a strict allow-nothing policy and
// decodes the remaining entities. Used for API fields that carry HTML.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return collapse(stdhtml.UnescapeString(strict.Sanitize(s)))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
