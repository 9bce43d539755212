package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type ollamaClient struct {
	cfg  Config
	http *http.Client
	base string
}

// newOllamaClient needs no key; local models are not retried.
func newOllamaClient(cfg Config) (Client, error) {
	base := "http://localhost:11434"
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	return &ollamaClient{
		cfg:  cfg,
		base: base,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaResponse struct {
	Message         chatMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func (c *ollamaClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	body := ollamaRequest{Model: c.cfg.Model, Messages: chatMessages(req)}
	body.Options.Temperature = req.temperature(c.cfg)
	body.Options.NumPredict = req.maxTokens(c.cfg)

	var resp ollamaResponse
	if err := postJSON(ctx, c.http, Ollama, c.base+"/api/chat", nil, body, &resp, nil); err != nil {
		return nil, err
	}
	return &Response{
		Content:      resp.Message.Content,
		FinishReason: resp.DoneReason,
		TokensIn:     resp.PromptEvalCount,
		TokensOut:    resp.EvalCount,
		Model:        c.cfg.Model,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (c *ollamaClient) Provider() Provider { return Ollama }
