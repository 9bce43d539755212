package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
)

// API fetches a JSON document and maps its items through the source's
// items_path and field_map configuration.
type API struct {
	base
}

// NewAPI creates the generic JSON API adapter.
func NewAPI(client scraper.Doer, opts Options, logger *slog.Logger) *API {
	return &API{base: newBase(client, opts, logger)}
}

func (a *API) Fetch(ctx context.Context, src model.Source) ([]model.RawItem, error) {
	cfg := src.Config
	headers := cfg.StringMap("headers")
	if _, ok := headers["Accept"]; !ok {
		headers["Accept"] = "application/json"
	}

	resp, err := a.get(ctx, scraper.Request{
		Method:  cfg.Method(),
		URL:     src.URL,
		Params:  cfg.StringMap("params"),
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, parseErr("json decode: %v", err)
	}

	records, err := walkItems(payload, cfg.ItemsPath())
	if err != nil {
		return nil, err
	}

	fields := cfg.FieldMap()
	items := make([]model.RawItem, 0, len(records))
	for _, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, mapFields(obj, fields))
	}

	pause(ctx, a.opts.Delay)
	return items, nil
}

// walkItems follows a dotted path into the payload. A missing key yields an
// empty list; a non-list result is wrapped as a single-element list.
func walkItems(v any, path string) ([]any, error) {
	current := v
	if path != "" {
		for _, key := range strings.Split(path, ".") {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, parseErr("items_path %q: expected object at %q, got %T", path, key, current)
			}
			next, ok := obj[key]
			if !ok {
				return []any{}, nil
			}
			current = next
		}
	}
	if list, ok := current.([]any); ok {
		return list, nil
	}
	if current == nil {
		return []any{}, nil
	}
	return []any{current}, nil
}

func mapFields(obj map[string]any, fields map[string]string) model.RawItem {
	item := model.RawItem{Metadata: obj}
	for ours, theirs := range fields {
		if theirs == "" {
			continue
		}
		v, ok := obj[theirs]
		if !ok {
			continue
		}
		switch ours {
		case "title":
			item.Title = asString(v)
		case "content":
			item.Content = asString(v)
		case "url":
			item.URL = asString(v)
		case "external_id":
			item.ExternalID = asString(v)
		case "author":
			item.Author = asString(v)
		case "published_at":
			item.PublishedAt = asTime(v)
		}
	}
	return item
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func asTime(v any) *time.Time {
	switch t := v.(type) {
	case float64:
		ts := time.Unix(int64(t), 0).UTC()
		return &ts
	case string:
		if ts, ok := parseDate(t); ok {
			return &ts
		}
	}
	return nil
}
