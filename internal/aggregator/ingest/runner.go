// Package ingest runs one fetch-normalize-persist cycle for a source on
// behalf of a topic and records the outcome as an ingestion log.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/adapter"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
)

// Field limits applied before persistence, in code points.
const (
	maxTitle  = 500
	maxURL    = 1000
	maxAuthor = 200
)

// Resolver picks the adapter for a source.
type Resolver interface {
	Resolve(src model.Source) (adapter.Kind, adapter.Adapter)
}

// Store is the persistence the runner needs.
type Store interface {
	SaveItems(ctx context.Context, sourceID, topicID int64, items []model.ContentItem) (int, error)
	InsertLog(ctx context.Context, l *model.IngestionLog) error
}

// Runner executes ingestion runs.
type Runner struct {
	adapters Resolver
	store    Store
	maxItems int
	logger   *slog.Logger
}

// NewRunner creates a Runner. maxItems caps how many fetched items are
// considered per run.
func NewRunner(adapters Resolver, store Store, maxItems int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if maxItems <= 0 {
		maxItems = adapter.DefaultOptions().MaxItems
	}
	return &Runner{
		adapters: adapters,
		store:    store,
		maxItems: maxItems,
		logger:   logger.With("component", "ingest"),
	}
}

// Run fetches src for topicID, stores new items and writes exactly one log
// entry. It returns the number of new items; failures are logged, never
// returned.
func (r *Runner) Run(ctx context.Context, src model.Source, topicID int64) int {
	kind, a := r.adapters.Resolve(src)
	log := r.logger.With("source", src.Name, "topic_id", topicID, "adapter", kind.String())

	saved, fetched, err := r.run(ctx, a, src, topicID)
	if err != nil {
		msg := describe(err)
		log.Error("ingestion failed", "error", err)
		r.writeLog(ctx, model.IngestionLog{
			SourceID: src.ID,
			TopicID:  topicID,
			Status:   model.StatusError,
			Message:  msg,
		})
		return 0
	}

	log.Info("ingestion completed", "fetched", fetched, "saved", saved)
	r.writeLog(ctx, model.IngestionLog{
		SourceID:     src.ID,
		TopicID:      topicID,
		Status:       model.StatusSuccess,
		Message:      fmt.Sprintf("Fetched %d items, saved %d new", fetched, saved),
		ItemsFetched: saved,
	})
	return saved
}

func (r *Runner) run(ctx context.Context, a adapter.Adapter, src model.Source, topicID int64) (saved, fetched int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("adapter panic: %v", p)
		}
	}()

	raw, err := a.Fetch(ctx, src)
	if err != nil {
		return 0, 0, err
	}
	if len(raw) > r.maxItems {
		raw = raw[:r.maxItems]
	}

	items := make([]model.ContentItem, 0, len(raw))
	for _, it := range raw {
		items = append(items, normalize(it, src.ID, topicID))
	}

	saved, err = r.store.SaveItems(ctx, src.ID, topicID, items)
	if err != nil {
		return 0, len(raw), err
	}
	return saved, len(raw), nil
}

func normalize(it model.RawItem, sourceID, topicID int64) model.ContentItem {
	return model.ContentItem{
		SourceID:    sourceID,
		TopicID:     topicID,
		ExternalID:  it.ExternalID,
		Title:       model.Truncate(it.Title, maxTitle),
		Content:     it.Content,
		URL:         model.Truncate(it.URL, maxURL),
		Author:      model.Truncate(it.Author, maxAuthor),
		PublishedAt: it.PublishedAt,
		Metadata:    it.Metadata,
	}
}

// describe renders the failure for the ingestion log.
func describe(err error) string {
	switch {
	case adapter.IsTransient(err):
		return "Request failed: " + err.Error()
	case errors.Is(err, adapter.ErrParse):
		return "Parse failed: " + err.Error()
	default:
		return "Unexpected error: " + err.Error()
	}
}

func (r *Runner) writeLog(ctx context.Context, l model.IngestionLog) {
	// the log must survive a cancelled run
	ctx = context.WithoutCancel(ctx)
	if err := r.store.InsertLog(ctx, &l); err != nil {
		r.logger.Error("failed to write ingestion log", "source_id", l.SourceID, "topic_id", l.TopicID, "error", err)
	}
}
