package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
)

// DefaultHackerNewsURL is the public Firebase endpoint of the HN API.
const DefaultHackerNewsURL = "https://hacker-news.firebaseio.com/v0"

// HackerNews fetches the ranked top stories and hydrates each one with a
// separate call. Only the id list request can fail the fetch; a story that
// cannot be loaded is logged and skipped.
type HackerNews struct {
	base
	// BaseURL is the API root, without trailing slash.
	BaseURL string
	// CallDelay is the pause between story calls.
	CallDelay time.Duration
}

// NewHackerNews creates the Hacker News adapter.
func NewHackerNews(client scraper.Doer, opts Options, logger *slog.Logger) *HackerNews {
	return &HackerNews{
		base:      newBase(client, opts, logger),
		BaseURL:   DefaultHackerNewsURL,
		CallDelay: 100 * time.Millisecond,
	}
}

type hnItem struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
}

func (h *HackerNews) Fetch(ctx context.Context, src model.Source) ([]model.RawItem, error) {
	resp, err := h.get(ctx, scraper.Request{URL: h.BaseURL + "/topstories.json"})
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal(resp.Body, &ids); err != nil {
		return nil, parseErr("topstories: %v", err)
	}
	if len(ids) > h.opts.MaxItems {
		ids = ids[:h.opts.MaxItems]
	}

	var items []model.RawItem
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		item, ok, err := h.fetchStory(ctx, id)
		if err != nil {
			h.logger.Warn("failed to fetch HN story", "source", src.Name, "id", id, "error", err)
		} else if ok {
			items = append(items, item)
		}
		pause(ctx, h.CallDelay)
	}

	pause(ctx, h.opts.Delay)
	return items, nil
}

// fetchStory loads one item; ok is false for anything that is not a story.
func (h *HackerNews) fetchStory(ctx context.Context, id int64) (model.RawItem, bool, error) {
	resp, err := h.get(ctx, scraper.Request{URL: fmt.Sprintf("%s/item/%d.json", h.BaseURL, id)})
	if err != nil {
		return model.RawItem{}, false, err
	}

	var story *hnItem
	if err := json.Unmarshal(resp.Body, &story); err != nil {
		return model.RawItem{}, false, parseErr("item %d: %v", id, err)
	}
	if story == nil || story.Type != "story" {
		return model.RawItem{}, false, nil
	}

	link := story.URL
	if link == "" {
		link = "https://news.ycombinator.com/item?id=" + strconv.FormatInt(id, 10)
	}
	published := time.Unix(story.Time, 0).UTC()

	return model.RawItem{
		ExternalID:  strconv.FormatInt(id, 10),
		Title:       story.Title,
		Content:     scraper.Sanitize(story.Text),
		URL:         link,
		Author:      story.By,
		PublishedAt: &published,
		Metadata: map[string]any{
			"score":    story.Score,
			"comments": story.Descendants,
		},
	}, true, nil
}
