package model

import (
	"encoding/json"
	"fmt"
)

// SourceConfig is the free-form adapter configuration attached to a source.
// Only recognized keys are read; everything else is carried through.
type SourceConfig map[string]any

// Default adapter configuration values.
const (
	DefaultMethod          = "GET"
	DefaultItemSelector    = "article"
	DefaultTitleSelector   = "h2"
	DefaultContentSelector = "p"
	DefaultLinkSelector    = "a"
)

// DefaultFieldMap maps normalized item fields to the remote JSON field names.
func DefaultFieldMap() map[string]string {
	return map[string]string{
		"title":       "title",
		"content":     "content",
		"url":         "url",
		"external_id": "id",
		"author":      "author",
	}
}

// String returns the string value of key, or def when absent or empty.
func (c SourceConfig) String(key, def string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}

// StringMap returns the object at key with every value rendered as a string.
func (c SourceConfig) StringMap(key string) map[string]string {
	out := map[string]string{}
	obj, ok := c[key].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range obj {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// Method returns the HTTP method for API sources.
func (c SourceConfig) Method() string { return c.String("method", DefaultMethod) }

// ItemsPath returns the dotted path to the item list, "" for the whole payload.
func (c SourceConfig) ItemsPath() string { return c.String("items_path", "") }

// FieldMap returns the configured field map, or the identity default.
func (c SourceConfig) FieldMap() map[string]string {
	if _, ok := c["field_map"].(map[string]any); !ok {
		return DefaultFieldMap()
	}
	return c.StringMap("field_map")
}

// Selectors returns the item, title, content and link selectors.
func (c SourceConfig) Selectors() (item, title, content, link string) {
	return c.String("item_selector", DefaultItemSelector),
		c.String("title_selector", DefaultTitleSelector),
		c.String("content_selector", DefaultContentSelector),
		c.String("link_selector", DefaultLinkSelector)
}

// JSON encodes the config for storage.
func (c SourceConfig) JSON() string {
	if len(c) == 0 {
		return "{}"
	}
	b, err := json.Marshal(map[string]any(c))
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ParseSourceConfig decodes a stored JSON object. Invalid input yields an
// empty config.
func ParseSourceConfig(raw string) SourceConfig {
	if raw == "" {
		return SourceConfig{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return SourceConfig{}
	}
	return SourceConfig(m)
}
