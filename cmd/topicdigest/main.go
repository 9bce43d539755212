// TopicDigest collects content from configured sources, ranks it and
// writes a short digest per topic.
//
// Usage:
//
//	topicdigest serve                 # API, scheduler and initial refresh
//	topicdigest refresh [topic]       # scrape and summarize now
//	topicdigest sources rank <topic>  # show source scores
//	topicdigest version
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/catalog"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/pipeline"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/scheduler"
	"github.com/RobinCoderZhao/topicdigest/internal/api"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "topicdigest",
		Short:         "Topic content aggregator and digest writer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "topicdigest.yaml", "config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(refreshCmd(&configPath))
	rootCmd.AddCommand(scrapeCmd(&configPath))
	rootCmd.AddCommand(summarizeCmd(&configPath))
	rootCmd.AddCommand(cleanupCmd(&configPath))
	rootCmd.AddCommand(syncCmd(&configPath))
	rootCmd.AddCommand(exportCmd(&configPath))
	rootCmd.AddCommand(sourcesCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp builds the app for one command and closes it afterwards.
func withApp(configPath *string, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, *configPath)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read API with scheduled refreshes",
		RunE: withApp(configPath, func(ctx context.Context, a *app, args []string) error {
			return runServe(ctx, a, !noScheduler)
		}),
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without periodic jobs")
	return cmd
}

func runServe(ctx context.Context, a *app, withScheduler bool) error {
	if _, err := a.syncCatalog(ctx); err != nil {
		a.logger.Error("catalog sync failed", "error", err)
	}

	var sched *scheduler.Scheduler
	var jobs api.Jobs
	if withScheduler {
		sched = scheduler.New(a.logger)
		for _, job := range scheduler.PipelineJobs(a.pipeline, a.cfg.Scheduler) {
			if err := sched.Add(job); err != nil {
				return err
			}
		}
		sched.Start()
		jobs = sched
	}

	// initial content for a fresh database, without delaying startup
	bootstrapDone := make(chan struct{})
	go func() {
		defer close(bootstrapDone)
		if _, err := a.pipeline.Bootstrap(ctx); err != nil {
			a.logger.Error("bootstrap failed", "error", err)
		}
	}()

	server := api.NewServer(a.store, a.pipeline, jobs, a.logger)
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting API server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", "error", err)
	}
	if err := server.Wait(shutdownCtx); err != nil {
		a.logger.Error("background refreshes still running", "error", err)
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			a.logger.Error("scheduler stop failed", "error", err)
		}
	}
	select {
	case <-bootstrapDone:
	case <-shutdownCtx.Done():
	}
	return serveErr
}

func refreshCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [topic]",
		Short: "Scrape and summarize one topic or all enabled topics",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, a *app, args []string) error {
			if len(args) == 1 {
				t, err := a.topic(ctx, args[0])
				if err != nil {
					return err
				}
				res, err := a.pipeline.RefreshTopic(ctx, t.ID)
				if err != nil {
					return err
				}
				res.Topic = t.Name
				printResults([]pipeline.Result{res})
				return nil
			}
			results, err := a.pipeline.RefreshAll(ctx)
			if err != nil {
				return err
			}
			printResults(results)
			return nil
		}),
	}
}

func scrapeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scrape [topic]",
		Short: "Fetch new content without summarizing",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, a *app, args []string) error {
			if len(args) == 1 {
				t, err := a.topic(ctx, args[0])
				if err != nil {
					return err
				}
				n, err := a.pipeline.ScrapeTopic(ctx, t.ID)
				if err != nil {
					return err
				}
				printResults([]pipeline.Result{{Topic: t.Name, Saved: n}})
				return nil
			}
			results, err := a.pipeline.ScrapeAll(ctx)
			if err != nil {
				return err
			}
			printResults(results)
			return nil
		}),
	}
}

func summarizeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize [topic]",
		Short: "Write digests from recently stored content",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, a *app, args []string) error {
			if len(args) == 1 {
				t, err := a.topic(ctx, args[0])
				if err != nil {
					return err
				}
				sum, err := a.pipeline.SummarizeTopic(ctx, t.ID)
				if err != nil {
					return err
				}
				if sum == nil {
					fmt.Printf("No recent content for %s.\n", t.Name)
					return nil
				}
				fmt.Println(sum.Content)
				return nil
			}
			results, err := a.pipeline.SummarizeAll(ctx)
			if err != nil {
				return err
			}
			printResults(results)
			return nil
		}),
	}
}

func cleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete content and logs past their retention",
		RunE: withApp(configPath, func(ctx context.Context, a *app, args []string) error {
			res, err := a.pipeline.Cleanup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d content items and %d logs.\n", res.Items, res.Logs)
			return nil
		}),
	}
}

func syncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Load topics and sources from the catalog files into the database",
		RunE: withApp(configPath, func(ctx context.Context, a *app, args []string) error {
			res, err := a.syncCatalog(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Synced %d topics, %d sources, %d links.\n", res.Topics, res.Sources, res.Links)
			return nil
		}),
	}
}

func exportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write topics and sources from the database to the catalog files",
		RunE: withApp(configPath, func(ctx context.Context, a *app, args []string) error {
			c, err := catalog.Export(ctx, a.store)
			if err != nil {
				return err
			}
			if err := catalog.Save(a.cfg.Catalog, c); err != nil {
				return err
			}
			fmt.Printf("Exported %d topics to %s and %d sources to %s.\n",
				len(c.Topics), a.cfg.Catalog.Topics, len(c.Sources), a.cfg.Catalog.Sources)
			return nil
		}),
	}
}

func sourcesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect sources",
	}

	var maxSources int
	rank := &cobra.Command{
		Use:   "rank <topic>",
		Short: "Score a topic's sources and show the diverse selection",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, a *app, args []string) error {
			t, err := a.topic(ctx, args[0])
			if err != nil {
				return err
			}
			sources, err := a.selector.SourcesForTopic(ctx, t.ID)
			if err != nil {
				return err
			}
			scored, err := a.selector.Scores(ctx, sources)
			if err != nil {
				return err
			}
			selected, err := a.selector.SelectDiverse(ctx, sources, maxSources)
			if err != nil {
				return err
			}
			picked := map[int64]bool{}
			for _, s := range selected {
				picked[s.ID] = true
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tTYPE\tWEIGHT\tSCORE\tSUCCESS\tLAST SCRAPED\tSELECTED")
			for _, sc := range scored {
				success, last := "-", "never"
				if sc.SuccessRate != nil {
					success = fmt.Sprintf("%.0f%%", *sc.SuccessRate*100)
				}
				if sc.LastScraped != nil {
					last = humanize.Time(*sc.LastScraped)
				}
				mark := ""
				if picked[sc.Source.ID] {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.1f\t%s\t%s\t%s\n",
					sc.Source.Name, sc.Source.Type, sc.Source.Weight, sc.Score, success, last, mark)
			}
			return w.Flush()
		}),
	}
	rank.Flags().IntVar(&maxSources, "max", 5, "number of sources to select")

	cmd.AddCommand(rank)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("topicdigest %s\n", version)
		},
	}
}

func printResults(results []pipeline.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOPIC\tNEW ITEMS\tSUMMARY\tERROR")
	for _, r := range results {
		summary := "no"
		if r.Summarized {
			summary = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Topic, r.Saved, summary, strings.TrimSpace(r.Error))
	}
	w.Flush()
}
