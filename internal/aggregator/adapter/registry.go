package adapter

import (
	"log/slog"
	"strings"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
)

// Kind is the closed set of adapter variants.
type Kind int

const (
	KindAPI Kind = iota
	KindFeed
	KindHTMLPage
	KindSpecialized
)

func (k Kind) String() string {
	switch k {
	case KindAPI:
		return "api"
	case KindFeed:
		return "feed"
	case KindHTMLPage:
		return "html-page"
	case KindSpecialized:
		return "specialized"
	default:
		return "unknown"
	}
}

// Registry maps sources to adapters. Specialized adapters are keyed by
// lower-cased source name and win over the generic adapter for the
// source's declared type.
type Registry struct {
	generic     map[Kind]Adapter
	specialized map[string]Adapter
}

// NewRegistry builds a registry with the generic adapters and the built-in
// specialized ones (Hacker News, Quotable) sharing one HTTP client.
func NewRegistry(client scraper.Doer, opts Options, logger *slog.Logger) *Registry {
	r := &Registry{
		generic: map[Kind]Adapter{
			KindAPI:      NewAPI(client, opts, logger),
			KindFeed:     NewFeed(client, opts, logger),
			KindHTMLPage: NewHTMLPage(client, opts, logger),
		},
		specialized: map[string]Adapter{},
	}
	hn := NewHackerNews(client, opts, logger)
	r.Register("hackernews", hn)
	r.Register("hacker_news", hn)
	r.Register("quotable", NewQuotable(client, opts, logger))
	return r
}

// Register adds or replaces a specialized adapter for a source name.
func (r *Registry) Register(name string, a Adapter) {
	if r.specialized == nil {
		r.specialized = map[string]Adapter{}
	}
	r.specialized[strings.ToLower(name)] = a
}

// Resolve picks the adapter for src. Unknown source types fall back to the
// JSON API adapter.
func (r *Registry) Resolve(src model.Source) (Kind, Adapter) {
	if a, ok := r.specialized[strings.ToLower(src.Name)]; ok {
		return KindSpecialized, a
	}
	kind := KindAPI
	switch model.ParseSourceType(string(src.Type)) {
	case model.SourceFeed:
		kind = KindFeed
	case model.SourceHTMLPage:
		kind = KindHTMLPage
	}
	return kind, r.generic[kind]
}
