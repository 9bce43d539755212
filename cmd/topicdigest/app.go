package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/adapter"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/catalog"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/config"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/ingest"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/pipeline"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/publish"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/selector"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/store"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/summarizer"
	"github.com/RobinCoderZhao/topicdigest/internal/logging"
	"github.com/RobinCoderZhao/topicdigest/pkg/llm"
	"github.com/RobinCoderZhao/topicdigest/pkg/notify"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
)

// app wires the service components from one configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	pipeline *pipeline.Pipeline
	selector *selector.Selector
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log)

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client := scraper.New(cfg.Fetch, nil)
	registry := adapter.NewRegistry(client, cfg.Adapters, logger)
	runner := ingest.NewRunner(registry, st, cfg.Adapters.MaxItems, logger)
	sum := summarizer.New(llm.NewLazy(cfg.LLM), logger)

	p := pipeline.New(st, runner, sum, cfg.Content, logger)
	pub := publish.New(notify.FromConfig(cfg.Notify, logger), cfg.HTTP.PublicURL, logger)
	if pub.Enabled() {
		p.SetPublisher(pub)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		pipeline: p,
		selector: selector.New(st),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// topic looks up an enabled or disabled topic by name.
func (a *app) topic(ctx context.Context, name string) (*model.Topic, error) {
	t, err := a.store.GetTopicByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("topic %q not found", name)
	}
	return t, nil
}

func (a *app) syncCatalog(ctx context.Context) (catalog.SyncResult, error) {
	c, err := catalog.Load(a.cfg.Catalog)
	if err != nil {
		return catalog.SyncResult{}, err
	}
	return catalog.Sync(ctx, a.store, c, a.logger)
}
