// Package ranker orders a topic's content items by relevance. It performs no
// I/O: every input comes from the items and their joined sources.
package ranker

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
)

// Score computes the relevance of one item at time now.
func Score(it model.ContentItem, now time.Time) float64 {
	score := 0.0

	if it.Source != nil {
		score += it.Source.Weight * 10
	}

	if !it.ScrapedAt.IsZero() {
		if age := now.Sub(it.ScrapedAt).Hours(); age < 6 {
			score += (6 - age) * 2
		}
	}

	if v, ok := number(it.Metadata, "score"); ok {
		score += min(v/10, 20)
	}
	if v, ok := number(it.Metadata, "comments"); ok {
		score += min(v/20, 10)
	}

	if model.RuneLen(it.Title) > 20 {
		score += 2
	}
	if model.RuneLen(it.Content) > 100 {
		score += 3
	}
	return score
}

// Rank returns a copy of items ordered by descending score. Ties keep their
// input order.
func Rank(items []model.ContentItem, now time.Time) []model.ContentItem {
	type scored struct {
		item  model.ContentItem
		score float64
	}
	tmp := make([]scored, len(items))
	for i, it := range items {
		tmp[i] = scored{item: it, score: Score(it, now)}
	}
	sort.SliceStable(tmp, func(i, j int) bool { return tmp[i].score > tmp[j].score })

	out := make([]model.ContentItem, len(tmp))
	for i, s := range tmp {
		out[i] = s.item
	}
	return out
}

// number reads a numeric metadata field of any JSON number representation.
func number(meta map[string]any, key string) (float64, bool) {
	v, ok := meta[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
