// Package model defines the records shared by the ingestion, ranking and
// summarization pipeline: sources, topics, content items, summaries and
// ingestion logs.
package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// SourceType is the declared kind of a content source.
type SourceType string

const (
	SourceAPI      SourceType = "api"
	SourceFeed     SourceType = "feed"
	SourceHTMLPage SourceType = "html-page"
)

// ParseSourceType normalizes a declared type. The catalog files historically
// used "rss" and "html", so both are accepted as aliases.
func ParseSourceType(s string) SourceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "feed", "rss", "atom":
		return SourceFeed
	case "html-page", "html", "page":
		return SourceHTMLPage
	case "api", "":
		return SourceAPI
	default:
		return SourceType(strings.ToLower(strings.TrimSpace(s)))
	}
}

// Source is one external content origin.
type Source struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Type        SourceType   `json:"source_type"`
	URL         string       `json:"url"`
	Enabled     bool         `json:"enabled"`
	Weight      float64      `json:"weight"`
	Config      SourceConfig `json:"config,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Label returns the display name, or the unique name when none is set.
func (s Source) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// Topic is a named aggregation bucket subscribed to one or more sources.
type Topic struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description"`
	Enabled      bool      `json:"enabled"`
	RefreshHours int       `json:"refresh_hours"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Label returns the display name, or the unique name when none is set.
func (t Topic) Label() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Name
}

// RawItem is what an adapter produces before persistence.
type RawItem struct {
	ExternalID  string
	Title       string
	Content     string
	URL         string
	Author      string
	PublishedAt *time.Time
	Metadata    map[string]any
}

// ContentItem is one normalized, persisted unit of fetched content.
type ContentItem struct {
	ID          int64          `json:"id"`
	SourceID    int64          `json:"source_id"`
	TopicID     int64          `json:"topic_id"`
	ExternalID  string         `json:"external_id,omitempty"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	URL         string         `json:"url"`
	Author      string         `json:"author,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	ScrapedAt   time.Time      `json:"scraped_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Source is populated by store reads that join the owning source.
	Source *Source `json:"-"`
}

// DedupKey returns the identity used to deduplicate the item within its
// source: the external id when present, otherwise the URL. The two are
// prefixed so an id never matches a URL. An item with neither has no key
// and is always treated as new.
func (c ContentItem) DedupKey() (string, bool) {
	if c.ExternalID != "" {
		return "id:" + c.ExternalID, true
	}
	if c.URL != "" {
		return "url:" + c.URL, true
	}
	return "", false
}

// SourceName returns the unique name of the joined source, if any.
func (c ContentItem) SourceName() string {
	if c.Source == nil {
		return ""
	}
	return c.Source.Name
}

// SourceLabel returns the display name of the joined source, or "Unknown".
func (c ContentItem) SourceLabel() string {
	if c.Source == nil {
		return "Unknown"
	}
	return c.Source.Label()
}

// Summary is one generated narrative for a topic. Summaries are never
// updated; the newest by CreatedAt wins.
type Summary struct {
	ID          int64     `json:"id"`
	TopicID     int64     `json:"topic_id"`
	Content     string    `json:"content"`
	SourcesUsed []string  `json:"sources_used"`
	ItemCount   int       `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// LogStatus is the outcome recorded for one ingestion run.
type LogStatus string

const (
	StatusSuccess LogStatus = "success"
	StatusError   LogStatus = "error"
	StatusSkipped LogStatus = "skipped"
)

// IngestionLog records the outcome of one source/topic ingestion run.
type IngestionLog struct {
	ID           int64     `json:"id"`
	SourceID     int64     `json:"source_id"`
	TopicID      int64     `json:"topic_id"`
	Status       LogStatus `json:"status"`
	Message      string    `json:"message"`
	ItemsFetched int       `json:"items_fetched"`
	CreatedAt    time.Time `json:"created_at"`
}

// Truncate cuts s to at most n code points.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// RuneLen returns the number of code points in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
