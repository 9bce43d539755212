// Package api provides the read API for topic digests.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/pipeline"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/scheduler"
)

// Store is the read access the API needs.
type Store interface {
	ListTopics(ctx context.Context, enabledOnly bool) ([]model.Topic, error)
	ListSources(ctx context.Context, enabledOnly bool) ([]model.Source, error)
	SourceTopicNames(ctx context.Context) (map[int64][]string, error)
	TopicSourceNames(ctx context.Context) (map[int64][]string, error)
	CountItems(ctx context.Context) (map[int64]int, error)
	GetTopicByName(ctx context.Context, name string) (*model.Topic, error)
	LatestSummary(ctx context.Context, topicID int64) (*model.Summary, error)
	LatestItems(ctx context.Context, topicID int64, limit int) ([]model.ContentItem, error)
}

// Pipeline is the work the API can trigger or report on.
type Pipeline interface {
	Status(ctx context.Context) (pipeline.Status, error)
	RefreshTopic(ctx context.Context, topicID int64) (pipeline.Result, error)
}

// Jobs reports scheduler state.
type Jobs interface {
	Jobs() scheduler.Status
}

// Server holds the dependencies for the API.
type Server struct {
	store    Store
	pipeline Pipeline
	jobs     Jobs
	logger   *slog.Logger

	refreshes sync.WaitGroup
}

// NewServer creates a new API Server instance. jobs may be nil when no
// scheduler runs.
func NewServer(store Store, p Pipeline, jobs Jobs, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		pipeline: p,
		jobs:     jobs,
		logger:   logger.With("component", "api"),
	}
}

// Routes returns the configured http.Handler for the API.
func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(s.requestLogger)

	mux.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth())
		r.Get("/status", s.handleStatus())
		r.Get("/scheduler", s.handleScheduler())

		r.Get("/topics", s.handleListTopics())
		r.Post("/topics/{topic}/refresh", s.handleRefreshTopic())
		r.Get("/sources", s.handleListSources())

		r.Get("/content", s.handleAllContent())
		r.Get("/content/{topic}", s.handleTopicContent())
		r.Get("/raw/{topic}", s.handleRawContent())
	})
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	return mux
}

// Wait blocks until background refreshes finish or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.refreshes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
