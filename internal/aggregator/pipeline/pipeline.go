// Package pipeline orchestrates per-topic refreshes: fetching every enabled
// source, then ranking and summarizing what was stored recently.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/ranker"
)

// Store is the persistence the pipeline needs.
type Store interface {
	GetTopic(ctx context.Context, id int64) (*model.Topic, error)
	ListTopics(ctx context.Context, enabledOnly bool) ([]model.Topic, error)
	ListSources(ctx context.Context, enabledOnly bool) ([]model.Source, error)
	SourcesForTopic(ctx context.Context, topicID int64, enabledOnly bool) ([]model.Source, error)
	RecentItems(ctx context.Context, topicID int64, since time.Time, limit int) ([]model.ContentItem, error)
	InsertSummary(ctx context.Context, sum *model.Summary) error
	CountSummaries(ctx context.Context) (int, error)
	LogCounts(ctx context.Context, since time.Time) (map[model.LogStatus]int, error)
	DeleteItemsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Ingester runs one source for one topic and returns the new item count.
type Ingester interface {
	Run(ctx context.Context, src model.Source, topicID int64) int
}

// Summarizer produces a narrative for ranked items.
type Summarizer interface {
	Summarize(ctx context.Context, ranked []model.ContentItem, topic model.Topic) (string, bool)
}

// Publisher announces a stored summary. Failures never undo the summary.
type Publisher interface {
	Publish(ctx context.Context, topic model.Topic, sum *model.Summary) error
}

// Options tunes the pipeline.
type Options struct {
	// Workers bounds concurrent source ingestions within one topic.
	Workers int `yaml:"workers" env:"FETCH_WORKERS"`
	// MaxItemsPerTopic caps how many recent items feed one summary.
	MaxItemsPerTopic int `yaml:"max_items_per_topic" env:"MAX_ITEMS_PER_TOPIC"`
	// SummaryWindow is how far back items are considered for a summary.
	SummaryWindow time.Duration `yaml:"summary_window" env:"SUMMARY_WINDOW"`
	// ContentRetention is how long content items are kept.
	ContentRetention time.Duration `yaml:"content_retention" env:"CONTENT_RETENTION"`
	// LogRetention is how long ingestion logs are kept.
	LogRetention time.Duration `yaml:"log_retention" env:"LOG_RETENTION"`
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Workers:          4,
		MaxItemsPerTopic: 20,
		SummaryWindow:    24 * time.Hour,
		ContentRetention: 7 * 24 * time.Hour,
		LogRetention:     30 * 24 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.MaxItemsPerTopic <= 0 {
		o.MaxItemsPerTopic = def.MaxItemsPerTopic
	}
	if o.SummaryWindow <= 0 {
		o.SummaryWindow = def.SummaryWindow
	}
	if o.ContentRetention <= 0 {
		o.ContentRetention = def.ContentRetention
	}
	if o.LogRetention <= 0 {
		o.LogRetention = def.LogRetention
	}
	return o
}

// Pipeline runs scrape, summarize and maintenance cycles.
type Pipeline struct {
	store      Store
	ingester   Ingester
	summarizer Summarizer
	publisher  Publisher
	opts       Options
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	topics map[int64]*sync.Mutex
}

// New creates a Pipeline.
func New(store Store, ingester Ingester, summarizer Summarizer, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      store,
		ingester:   ingester,
		summarizer: summarizer,
		opts:       opts.withDefaults(),
		logger:     logger.With("component", "pipeline"),
		now:        func() time.Time { return time.Now().UTC() },
		topics:     map[int64]*sync.Mutex{},
	}
}

// SetPublisher installs a hook called after each stored summary.
func (p *Pipeline) SetPublisher(pub Publisher) { p.publisher = pub }

// SetClock replaces the time source.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

// Result reports one topic's outcome within a batch.
type Result struct {
	Topic      string `json:"topic"`
	Saved      int    `json:"saved"`
	Summarized bool   `json:"summarized"`
	Error      string `json:"error,omitempty"`
}

// ScrapeTopic ingests every enabled source of the topic and returns the
// number of new items. Missing or disabled topics are skipped.
func (p *Pipeline) ScrapeTopic(ctx context.Context, topicID int64) (int, error) {
	topic, err := p.store.GetTopic(ctx, topicID)
	if err != nil {
		return 0, fmt.Errorf("load topic %d: %w", topicID, err)
	}
	if topic == nil || !topic.Enabled {
		p.logger.Info("topic skipped", "topic_id", topicID)
		return 0, nil
	}
	return p.scrape(ctx, *topic)
}

func (p *Pipeline) scrape(ctx context.Context, topic model.Topic) (int, error) {
	sources, err := p.store.SourcesForTopic(ctx, topic.ID, true)
	if err != nil {
		return 0, fmt.Errorf("load sources for %s: %w", topic.Name, err)
	}

	start := time.Now()
	var saved atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for _, src := range sources {
		g.Go(func() error {
			saved.Add(int64(p.ingester.Run(ctx, src, topic.ID)))
			return nil
		})
	}
	g.Wait()

	total := int(saved.Load())
	p.logger.Info("topic scraped",
		"topic", topic.Name,
		"sources", len(sources),
		"saved", total,
		"duration", time.Since(start),
	)
	return total, nil
}

// SummarizeTopic ranks the topic's recent items and stores a new summary.
// It returns nil without error when there is nothing to summarize.
func (p *Pipeline) SummarizeTopic(ctx context.Context, topicID int64) (*model.Summary, error) {
	topic, err := p.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("load topic %d: %w", topicID, err)
	}
	if topic == nil || !topic.Enabled {
		return nil, nil
	}
	return p.summarize(ctx, *topic)
}

func (p *Pipeline) summarize(ctx context.Context, topic model.Topic) (*model.Summary, error) {
	lock := p.topicLock(topic.ID)
	lock.Lock()
	defer lock.Unlock()

	now := p.now()
	items, err := p.store.RecentItems(ctx, topic.ID, now.Add(-p.opts.SummaryWindow), p.opts.MaxItemsPerTopic)
	if err != nil {
		return nil, fmt.Errorf("load recent items for %s: %w", topic.Name, err)
	}
	if len(items) == 0 {
		p.logger.Info("no recent content", "topic", topic.Name)
		return nil, nil
	}

	ranked := ranker.Rank(items, now)
	text, ok := p.summarizer.Summarize(ctx, ranked, topic)
	if !ok {
		return nil, nil
	}

	sum := &model.Summary{
		TopicID:     topic.ID,
		Content:     text,
		SourcesUsed: sourceNames(ranked),
		ItemCount:   len(ranked),
	}
	if err := p.store.InsertSummary(ctx, sum); err != nil {
		return nil, fmt.Errorf("save summary for %s: %w", topic.Name, err)
	}
	p.logger.Info("summary saved", "topic", topic.Name, "items", sum.ItemCount, "sources", sum.SourcesUsed)
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, topic, sum); err != nil {
			p.logger.Warn("summary not published", "topic", topic.Name, "error", err)
		}
	}
	return sum, nil
}

// topicLock serializes summary generation per topic.
func (p *Pipeline) topicLock(id int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.topics[id]
	if !ok {
		l = &sync.Mutex{}
		p.topics[id] = l
	}
	return l
}

// sourceNames returns the distinct source names in ranked order.
func sourceNames(ranked []model.ContentItem) []string {
	seen := map[string]bool{}
	names := []string{}
	for _, it := range ranked {
		name := it.SourceName()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// RefreshTopic scrapes the topic and then summarizes it.
func (p *Pipeline) RefreshTopic(ctx context.Context, topicID int64) (Result, error) {
	topic, err := p.store.GetTopic(ctx, topicID)
	if err != nil {
		return Result{}, fmt.Errorf("load topic %d: %w", topicID, err)
	}
	if topic == nil || !topic.Enabled {
		return Result{}, nil
	}
	return p.refresh(ctx, *topic), nil
}

func (p *Pipeline) refresh(ctx context.Context, topic model.Topic) Result {
	res := Result{Topic: topic.Name}
	saved, err := p.scrape(ctx, topic)
	res.Saved = saved
	if err != nil {
		res.Error = err.Error()
		p.logger.Error("scrape failed", "topic", topic.Name, "error", err)
	}
	sum, err := p.summarize(ctx, topic)
	if err != nil {
		res.Error = err.Error()
		p.logger.Error("summarize failed", "topic", topic.Name, "error", err)
	}
	res.Summarized = sum != nil
	return res
}

// ScrapeAll scrapes every enabled topic.
func (p *Pipeline) ScrapeAll(ctx context.Context) ([]Result, error) {
	return p.each(ctx, "scrape", func(ctx context.Context, topic model.Topic) Result {
		res := Result{Topic: topic.Name}
		saved, err := p.scrape(ctx, topic)
		res.Saved = saved
		if err != nil {
			res.Error = err.Error()
		}
		return res
	})
}

// SummarizeAll summarizes every enabled topic.
func (p *Pipeline) SummarizeAll(ctx context.Context) ([]Result, error) {
	return p.each(ctx, "summarize", func(ctx context.Context, topic model.Topic) Result {
		res := Result{Topic: topic.Name}
		sum, err := p.summarize(ctx, topic)
		if err != nil {
			res.Error = err.Error()
		}
		res.Summarized = sum != nil
		return res
	})
}

// RefreshAll scrapes and summarizes every enabled topic.
func (p *Pipeline) RefreshAll(ctx context.Context) ([]Result, error) {
	return p.each(ctx, "refresh", p.refresh)
}

// each runs fn for every enabled topic. A topic's failure, including a
// panic, is logged and the batch moves on.
func (p *Pipeline) each(ctx context.Context, op string, fn func(context.Context, model.Topic) Result) ([]Result, error) {
	topics, err := p.store.ListTopics(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	start := time.Now()
	results := make([]Result, 0, len(topics))
	for _, topic := range topics {
		res := p.safely(ctx, topic, fn)
		if res.Error != "" {
			p.logger.Error(op+" failed", "topic", topic.Name, "error", res.Error)
		}
		results = append(results, res)
	}
	p.logger.Info(op+" completed", "topics", len(topics), "duration", time.Since(start))
	return results, nil
}

func (p *Pipeline) safely(ctx context.Context, topic model.Topic, fn func(context.Context, model.Topic) Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Topic: topic.Name, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return fn(ctx, topic)
}

// CleanupResult reports what Cleanup removed.
type CleanupResult struct {
	Items int64 `json:"items"`
	Logs  int64 `json:"logs"`
}

// Cleanup deletes content and ingestion logs past their retention.
// Summaries are kept.
func (p *Pipeline) Cleanup(ctx context.Context) (CleanupResult, error) {
	now := p.now()
	var res CleanupResult
	var err error
	if res.Items, err = p.store.DeleteItemsBefore(ctx, now.Add(-p.opts.ContentRetention)); err != nil {
		return res, fmt.Errorf("delete old items: %w", err)
	}
	if res.Logs, err = p.store.DeleteLogsBefore(ctx, now.Add(-p.opts.LogRetention)); err != nil {
		return res, fmt.Errorf("delete old logs: %w", err)
	}
	p.logger.Info("cleanup completed", "items_deleted", res.Items, "logs_deleted", res.Logs)
	return res, nil
}

// Bootstrap refreshes everything when no summary has been produced yet.
// It reports whether a refresh ran.
func (p *Pipeline) Bootstrap(ctx context.Context) (bool, error) {
	n, err := p.store.CountSummaries(ctx)
	if err != nil {
		return false, fmt.Errorf("count summaries: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	p.logger.Info("no summaries yet, running initial refresh")
	if _, err := p.RefreshAll(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Status is an operational snapshot.
type Status struct {
	Topics     int       `json:"topics"`
	Sources    int       `json:"sources"`
	Summaries  int       `json:"summaries"`
	Success24h int       `json:"success_24h"`
	Errors24h  int       `json:"errors_24h"`
	Time       time.Time `json:"time"`
}

// Status reports enabled topic and source counts and the last day's
// ingestion outcomes.
func (p *Pipeline) Status(ctx context.Context) (Status, error) {
	now := p.now()
	st := Status{Time: now}

	topics, err := p.store.ListTopics(ctx, true)
	if err != nil {
		return st, fmt.Errorf("list topics: %w", err)
	}
	st.Topics = len(topics)

	sources, err := p.store.ListSources(ctx, true)
	if err != nil {
		return st, fmt.Errorf("list sources: %w", err)
	}
	st.Sources = len(sources)

	if st.Summaries, err = p.store.CountSummaries(ctx); err != nil {
		return st, fmt.Errorf("count summaries: %w", err)
	}

	counts, err := p.store.LogCounts(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return st, fmt.Errorf("count logs: %w", err)
	}
	st.Success24h = counts[model.StatusSuccess]
	st.Errors24h = counts[model.StatusError]
	return st, nil
}
