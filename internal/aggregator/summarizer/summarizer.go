// Package summarizer turns ranked content items into a short narrative for a
// topic. When the generative backend is unavailable it falls back to a
// deterministic extractive digest.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/llm"
)

// ErrBackendUnavailable wraps every generative backend failure.
var ErrBackendUnavailable = errors.New("summary backend unavailable")

// Prompt limits.
const (
	maxPromptItems   = 15
	maxPromptContent = 500
	maxFallbackItems = 5
)

const systemPrompt = `You are a content curator writing brief, engaging topic digests.
Write a concise summary of 2-4 paragraphs that highlights the most interesting and relevant information,
connects related themes where appropriate, and keeps source attribution (mention where key information came from).
Use clear, accessible language. For quotes or facts, include the quote or fact with attribution.
For news, summarize the key developments and their significance.`

// ClientProvider yields the generative client, or an error when it cannot
// be built. *llm.Lazy implements it.
type ClientProvider interface {
	Get() (llm.Client, error)
}

// Summarizer produces topic narratives.
type Summarizer struct {
	backend ClientProvider
	logger  *slog.Logger
}

// New creates a Summarizer. A nil backend always uses the fallback.
func New(backend ClientProvider, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{backend: backend, logger: logger.With("component", "summarizer")}
}

// Summarize returns a narrative for the ranked items. ok is false only when
// items is empty.
func (s *Summarizer) Summarize(ctx context.Context, ranked []model.ContentItem, topic model.Topic) (text string, ok bool) {
	if len(ranked) == 0 {
		return "", false
	}

	text, err := s.generate(ctx, ranked, topic)
	if err != nil {
		s.logger.Warn("using fallback summary", "topic", topic.Name, "error", err)
		return Fallback(ranked, topic), true
	}
	return text, true
}

func (s *Summarizer) generate(ctx context.Context, ranked []model.ContentItem, topic model.Topic) (string, error) {
	if s.backend == nil {
		return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, llm.ErrNotConfigured)
	}
	client, err := s.backend.Get()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	resp, err := client.Generate(ctx, llm.Prompt(systemPrompt, Prompt(ranked, topic)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrBackendUnavailable)
	}

	s.logger.Info("summary generated",
		"topic", topic.Name,
		"provider", client.Provider(),
		"model", resp.Model,
		"tokens_in", resp.TokensIn,
		"tokens_out", resp.TokensOut,
		"latency_ms", resp.LatencyMs,
	)
	return text, nil
}

// Prompt builds the user prompt from the first items of the ranked list.
func Prompt(ranked []model.ContentItem, topic model.Topic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a summary for the %q feed.\n\nHere are the latest items collected from various sources:\n\n", topic.Label())
	b.WriteString(promptContext(ranked))
	b.WriteString("\n\nSummary:")
	return b.String()
}

func promptContext(ranked []model.ContentItem) string {
	if len(ranked) > maxPromptItems {
		ranked = ranked[:maxPromptItems]
	}
	parts := make([]string, 0, len(ranked))
	for i, it := range ranked {
		var p strings.Builder
		p.WriteString("[" + strconv.Itoa(i+1) + "] Source: " + it.SourceLabel() + "\n")
		title := it.Title
		if title == "" {
			title = "No title"
		}
		p.WriteString("Title: " + title + "\n")
		if it.Content != "" {
			content := it.Content
			if model.RuneLen(content) > maxPromptContent {
				content = model.Truncate(content, maxPromptContent) + "..."
			}
			p.WriteString("Content: " + content + "\n")
		}
		if it.URL != "" {
			p.WriteString("URL: " + it.URL + "\n")
		}
		parts = append(parts, p.String())
	}
	return strings.Join(parts, "\n---\n")
}

// Fallback builds the extractive digest: a heading, the item count, then up
// to five titles per source, grouped in order of first appearance.
func Fallback(ranked []model.ContentItem, topic model.Topic) string {
	lines := []string{
		"## " + topic.Label() + "\n",
		fmt.Sprintf("*%d items collected*\n", len(ranked)),
	}

	var order []string
	groups := map[string][]model.ContentItem{}
	for _, it := range ranked {
		name := it.SourceLabel()
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], it)
	}

	for _, name := range order {
		lines = append(lines, "\n**From "+name+":**")
		items := groups[name]
		if len(items) > maxFallbackItems {
			items = items[:maxFallbackItems]
		}
		for _, it := range items {
			title := it.Title
			if title == "" {
				title = "Untitled"
			}
			if it.URL != "" {
				lines = append(lines, "- ["+title+"]("+it.URL+")")
			} else {
				lines = append(lines, "- "+title)
			}
		}
	}
	return strings.Join(lines, "\n")
}
