package adapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
)

// DefaultQuotableURL returns one random quote per call.
const DefaultQuotableURL = "https://api.quotable.io/random"

// Quotable collects a handful of random quotes, one call each. Failed calls
// are logged and skipped, so a fully failing run yields no items and no error.
type Quotable struct {
	base
	URL       string
	Calls     int
	CallDelay time.Duration
}

// NewQuotable creates the Quotable adapter.
func NewQuotable(client scraper.Doer, opts Options, logger *slog.Logger) *Quotable {
	return &Quotable{
		base:      newBase(client, opts, logger),
		URL:       DefaultQuotableURL,
		Calls:     5,
		CallDelay: 200 * time.Millisecond,
	}
}

type quote struct {
	ID      string   `json:"_id"`
	Content string   `json:"content"`
	Author  string   `json:"author"`
	Tags    []string `json:"tags"`
	Length  int      `json:"length"`
}

func (q *Quotable) Fetch(ctx context.Context, src model.Source) ([]model.RawItem, error) {
	var items []model.RawItem
	for i := 0; i < q.Calls && ctx.Err() == nil; i++ {
		item, err := q.fetchQuote(ctx)
		if err != nil {
			q.logger.Warn("failed to fetch quote", "source", src.Name, "error", err)
			continue
		}
		items = append(items, item)
		pause(ctx, q.CallDelay)
	}

	pause(ctx, q.opts.Delay)
	return items, nil
}

func (q *Quotable) fetchQuote(ctx context.Context) (model.RawItem, error) {
	resp, err := q.get(ctx, scraper.Request{URL: q.URL})
	if err != nil {
		return model.RawItem{}, err
	}
	var v quote
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return model.RawItem{}, parseErr("quote: %v", err)
	}
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	return model.RawItem{
		ExternalID: v.ID,
		Title:      model.Truncate(v.Content, 100),
		Content:    v.Content,
		Author:     v.Author,
		Metadata: map[string]any{
			"tags":   tags,
			"length": v.Length,
		},
	}, nil
}
