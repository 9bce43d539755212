package scheduler

import (
	"context"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/pipeline"
)

// Job names.
const (
	JobScrapeAll    = "scrape_all"
	JobSummarizeAll = "summarize_all"
	JobCleanup      = "cleanup"
)

// Pipeline is the work the built-in jobs trigger.
type Pipeline interface {
	ScrapeAll(ctx context.Context) ([]pipeline.Result, error)
	SummarizeAll(ctx context.Context) ([]pipeline.Result, error)
	Cleanup(ctx context.Context) (pipeline.CleanupResult, error)
}

// PipelineJobs returns the scrape, summarize and cleanup jobs for p.
func PipelineJobs(p Pipeline, iv Intervals) []Job {
	def := DefaultIntervals()
	if iv.Scrape <= 0 {
		iv.Scrape = def.Scrape
	}
	if iv.Summarize <= 0 {
		iv.Summarize = def.Summarize
	}
	if iv.Cleanup == "" {
		iv.Cleanup = def.Cleanup
	}

	return []Job{
		{
			Name:     JobScrapeAll,
			Schedule: Every(iv.Scrape),
			Fn: func(ctx context.Context) error {
				_, err := p.ScrapeAll(ctx)
				return err
			},
		},
		{
			Name:     JobSummarizeAll,
			Schedule: Every(iv.Summarize),
			Fn: func(ctx context.Context) error {
				_, err := p.SummarizeAll(ctx)
				return err
			},
		},
		{
			Name:     JobCleanup,
			Schedule: iv.Cleanup,
			Fn: func(ctx context.Context) error {
				_, err := p.Cleanup(ctx)
				return err
			},
		},
	}
}
