// Package selector ranks a topic's sources by reliability and freshness and
// picks a capped, type-varied subset of them.
package selector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
)

// Scoring constants.
const (
	weightFactor      = 100.0
	reliabilityPoints = 30.0
	freshBonus        = 20.0
	stalePenalty      = 10.0

	reliabilityWindow = 7 * 24 * time.Hour
	freshWithin       = 6 * time.Hour
	staleAfter        = 48 * time.Hour
)

// Stats is the read access the selector needs.
type Stats interface {
	SourcesForTopic(ctx context.Context, topicID int64, enabledOnly bool) ([]model.Source, error)
	LogStats(ctx context.Context, sourceID int64, since time.Time) (success, total int, err error)
	LatestScrapedAt(ctx context.Context, sourceID int64) (*time.Time, error)
}

// Scored is a source with its score breakdown.
type Scored struct {
	Source      model.Source `json:"source"`
	Score       float64      `json:"score"`
	SuccessRate *float64     `json:"success_rate,omitempty"`
	LastScraped *time.Time   `json:"last_scraped,omitempty"`
}

// Selector ranks and selects sources.
type Selector struct {
	stats Stats
	now   func() time.Time
}

// New creates a Selector backed by stats.
func New(stats Stats) *Selector {
	return &Selector{stats: stats, now: time.Now}
}

// SetClock replaces the time source.
func (s *Selector) SetClock(now func() time.Time) { s.now = now }

// SourcesForTopic returns the enabled sources associated with a topic.
func (s *Selector) SourcesForTopic(ctx context.Context, topicID int64) ([]model.Source, error) {
	return s.stats.SourcesForTopic(ctx, topicID, true)
}

// Scores computes each source's score and returns them ordered by
// descending score. Ties keep input order.
func (s *Selector) Scores(ctx context.Context, sources []model.Source) ([]Scored, error) {
	now := s.now()
	out := make([]Scored, 0, len(sources))
	for _, src := range sources {
		sc, err := s.score(ctx, src, now)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *Selector) score(ctx context.Context, src model.Source, now time.Time) (Scored, error) {
	sc := Scored{Source: src, Score: src.Weight * weightFactor}

	success, total, err := s.stats.LogStats(ctx, src.ID, now.Add(-reliabilityWindow))
	if err != nil {
		return Scored{}, fmt.Errorf("score source %s: %w", src.Name, err)
	}
	if total > 0 {
		rate := float64(success) / float64(total)
		sc.SuccessRate = &rate
		sc.Score += rate * reliabilityPoints
	}

	last, err := s.stats.LatestScrapedAt(ctx, src.ID)
	if err != nil {
		return Scored{}, fmt.Errorf("score source %s: %w", src.Name, err)
	}
	if last != nil {
		sc.LastScraped = last
		switch age := now.Sub(*last); {
		case age < freshWithin:
			sc.Score += freshBonus
		case age > staleAfter:
			sc.Score -= stalePenalty
		}
	}
	return sc, nil
}

// Rank returns sources ordered by descending score.
func (s *Selector) Rank(ctx context.Context, sources []model.Source) ([]model.Source, error) {
	scored, err := s.Scores(ctx, sources)
	if err != nil {
		return nil, err
	}
	out := make([]model.Source, len(scored))
	for i, sc := range scored {
		out[i] = sc.Source
	}
	return out, nil
}

// SelectDiverse returns exactly min(max, len(sources)) sources in ranked
// order. The top source is always kept, then sources of not yet seen types
// in ranked order, then the best remaining sources regardless of type.
func (s *Selector) SelectDiverse(ctx context.Context, sources []model.Source, max int) ([]model.Source, error) {
	ranked, err := s.Rank(ctx, sources)
	if err != nil {
		return nil, err
	}
	return Diverse(ranked, max), nil
}

// Diverse applies the diversity policy to an already ranked list.
func Diverse(ranked []model.Source, max int) []model.Source {
	if max <= 0 {
		return []model.Source{}
	}
	if len(ranked) <= max {
		return append([]model.Source(nil), ranked...)
	}

	picked := make([]bool, len(ranked))
	picked[0] = true
	count := 1
	seen := map[model.SourceType]bool{typeOf(ranked[0]): true}

	for i := 1; i < len(ranked) && count < max; i++ {
		t := typeOf(ranked[i])
		if seen[t] {
			continue
		}
		seen[t] = true
		picked[i] = true
		count++
	}
	for i := 1; i < len(ranked) && count < max; i++ {
		if !picked[i] {
			picked[i] = true
			count++
		}
	}

	out := make([]model.Source, 0, max)
	for i, src := range ranked {
		if picked[i] {
			out = append(out, src)
		}
	}
	return out
}

func typeOf(src model.Source) model.SourceType {
	return model.ParseSourceType(string(src.Type))
}
