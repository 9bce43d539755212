package llm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// openaiClient speaks the chat completions API, which several hosted
// providers (MiniMax among them) also implement.
type openaiClient struct {
	cfg      Config
	provider Provider
	http     *http.Client
	base     string
}

func newOpenAIClient(cfg Config, p Provider) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", p, ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	base := "https://api.openai.com/v1"
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	c := &openaiClient{
		cfg:      cfg,
		provider: p,
		base:     base,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
	return wrapWithRetry(c, cfg.MaxRetries), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

func chatMessages(req *Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}

func (c *openaiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    chatMessages(req),
		MaxTokens:   req.maxTokens(c.cfg),
		Temperature: req.temperature(c.cfg),
	}
	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	if err := postJSON(ctx, c.http, c.provider, c.base+"/chat/completions", headers, body, &resp, errorField); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	model := resp.Model
	if model == "" {
		model = c.cfg.Model
	}
	return &Response{
		Content:      stripThinkTags(resp.Choices[0].Message.Content),
		FinishReason: resp.Choices[0].FinishReason,
		TokensIn:     resp.Usage.PromptTokens,
		TokensOut:    resp.Usage.CompletionTokens,
		Model:        model,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (c *openaiClient) Provider() Provider { return c.provider }

var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripThinkTags drops reasoning blocks some compatible models emit inline.
func stripThinkTags(content string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(content, ""))
}
