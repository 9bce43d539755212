package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/scheduler"
)

const (
	defaultRawLimit = 20
	maxRawLimit     = 100
)

// sourceView omits the adapter config, which may carry credentials.
type sourceView struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	DisplayName string           `json:"display_name"`
	Type        model.SourceType `json:"source_type"`
	URL         string           `json:"url"`
	Enabled     bool             `json:"enabled"`
	Weight      float64          `json:"weight"`
	Topics      []string         `json:"topics"`
}

// topicView adds the linked source names and stored item count.
type topicView struct {
	model.Topic
	Sources   []string `json:"sources"`
	ItemCount int      `json:"item_count"`
}

type summaryView struct {
	ID               int64     `json:"id"`
	Topic            string    `json:"topic"`
	TopicDisplayName string    `json:"topic_display_name"`
	Content          string    `json:"content"`
	SourcesUsed      []string  `json:"sources_used"`
	ItemCount        int       `json:"item_count"`
	CreatedAt        time.Time `json:"created_at"`
}

func newSummaryView(sum *model.Summary, topic model.Topic) summaryView {
	return summaryView{
		ID:               sum.ID,
		Topic:            topic.Name,
		TopicDisplayName: topic.Label(),
		Content:          sum.Content,
		SourcesUsed:      sum.SourcesUsed,
		ItemCount:        sum.ItemCount,
		CreatedAt:        sum.CreatedAt,
	}
}

type itemView struct {
	ID          int64      `json:"id"`
	Source      string     `json:"source"`
	Topic       string     `json:"topic"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	URL         string     `json:"url"`
	Author      string     `json:"author"`
	PublishedAt *time.Time `json:"published_at"`
	ScrapedAt   time.Time  `json:"scraped_at"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "topicdigest"})
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.pipeline.Status(r.Context())
		if err != nil {
			s.logger.Error("status failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load status")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"topics_active":  st.Topics,
			"sources_active": st.Sources,
			"summaries":      st.Summaries,
			"scrapes_24h": map[string]int{
				"success": st.Success24h,
				"error":   st.Errors24h,
			},
		})
	}
}

func (s *Server) handleScheduler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jobs == nil {
			respondJSON(w, http.StatusOK, scheduler.Status{Status: "not_initialized", Jobs: []scheduler.JobStatus{}})
			return
		}
		respondJSON(w, http.StatusOK, s.jobs.Jobs())
	}
}

func (s *Server) handleListTopics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics, err := s.store.ListTopics(r.Context(), true)
		if err != nil {
			s.logger.Error("list topics failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load topics")
			return
		}
		links, err := s.store.TopicSourceNames(r.Context())
		if err != nil {
			s.logger.Error("list topic sources failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load topics")
			return
		}
		counts, err := s.store.CountItems(r.Context())
		if err != nil {
			s.logger.Error("count items failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load topics")
			return
		}

		out := make([]topicView, 0, len(topics))
		for _, t := range topics {
			sources := links[t.ID]
			if sources == nil {
				sources = []string{}
			}
			out = append(out, topicView{Topic: t, Sources: sources, ItemCount: counts[t.ID]})
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"topics": out})
	}
}

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.store.ListSources(r.Context(), true)
		if err != nil {
			s.logger.Error("list sources failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load sources")
			return
		}
		links, err := s.store.SourceTopicNames(r.Context())
		if err != nil {
			s.logger.Error("list source topics failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load sources")
			return
		}

		out := make([]sourceView, 0, len(sources))
		for _, src := range sources {
			topics := links[src.ID]
			if topics == nil {
				topics = []string{}
			}
			out = append(out, sourceView{
				ID:          src.ID,
				Name:        src.Name,
				DisplayName: src.Label(),
				Type:        src.Type,
				URL:         src.URL,
				Enabled:     src.Enabled,
				Weight:      src.Weight,
				Topics:      topics,
			})
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"sources": out})
	}
}

func (s *Server) handleAllContent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics, err := s.store.ListTopics(r.Context(), true)
		if err != nil {
			s.logger.Error("list topics failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load content")
			return
		}

		content := []summaryView{}
		for _, t := range topics {
			sum, err := s.store.LatestSummary(r.Context(), t.ID)
			if err != nil {
				s.logger.Error("load summary failed", "topic", t.Name, "error", err)
				respondError(w, http.StatusInternalServerError, "Failed to load content")
				return
			}
			if sum != nil {
				content = append(content, newSummaryView(sum, t))
			}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"content": content})
	}
}

// topic resolves the {topic} URL parameter, writing a 404 when unknown.
func (s *Server) topic(w http.ResponseWriter, r *http.Request) (*model.Topic, bool) {
	name := chi.URLParam(r, "topic")
	t, err := s.store.GetTopicByName(r.Context(), name)
	if err != nil {
		s.logger.Error("load topic failed", "topic", name, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load topic")
		return nil, false
	}
	if t == nil {
		respondError(w, http.StatusNotFound, "Topic not found")
		return nil, false
	}
	return t, true
}

func (s *Server) handleTopicContent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := s.topic(w, r)
		if !ok {
			return
		}
		sum, err := s.store.LatestSummary(r.Context(), t.ID)
		if err != nil {
			s.logger.Error("load summary failed", "topic", t.Name, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load content")
			return
		}
		if sum == nil {
			respondError(w, http.StatusNotFound, "No content available for this topic")
			return
		}
		respondJSON(w, http.StatusOK, newSummaryView(sum, *t))
	}
}

func (s *Server) handleRawContent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := s.topic(w, r)
		if !ok {
			return
		}

		limit := defaultRawLimit
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = min(v, maxRawLimit)
		}

		items, err := s.store.LatestItems(r.Context(), t.ID, limit)
		if err != nil {
			s.logger.Error("load items failed", "topic", t.Name, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load items")
			return
		}
		out := make([]itemView, 0, len(items))
		for _, it := range items {
			out = append(out, itemView{
				ID:          it.ID,
				Source:      it.SourceName(),
				Topic:       t.Name,
				Title:       it.Title,
				Content:     it.Content,
				URL:         it.URL,
				Author:      it.Author,
				PublishedAt: it.PublishedAt,
				ScrapedAt:   it.ScrapedAt,
			})
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"topic": t, "items": out})
	}
}

func (s *Server) handleRefreshTopic() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := s.topic(w, r)
		if !ok {
			return
		}
		if !t.Enabled {
			respondError(w, http.StatusConflict, "Topic is disabled")
			return
		}

		ctx := context.WithoutCancel(r.Context())
		s.refreshes.Add(1)
		go func() {
			defer s.refreshes.Done()
			res, err := s.pipeline.RefreshTopic(ctx, t.ID)
			if err != nil {
				s.logger.Error("manual refresh failed", "topic", t.Name, "error", err)
				return
			}
			s.logger.Info("manual refresh completed", "topic", t.Name, "saved", res.Saved, "summarized", res.Summarized)
		}()

		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "topic": t.Name})
	}
}
