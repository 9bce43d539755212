// Package llm provides a small provider-neutral client for text generation.
// Gemini, OpenAI-compatible endpoints and local Ollama models are supported;
// hosted providers get automatic retries on transient failures.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names an LLM backend.
type Provider string

const (
	Gemini  Provider = "gemini"
	OpenAI  Provider = "openai"
	Ollama  Provider = "ollama"
	MiniMax Provider = "minimax"
)

// ErrNotConfigured is returned when a hosted provider has no API key.
var ErrNotConfigured = errors.New("llm backend not configured")

// Config holds configuration for an LLM client.
type Config struct {
	Provider    Provider      `yaml:"provider" json:"provider" env:"LLM_PROVIDER"`
	Model       string        `yaml:"model" json:"model" env:"LLM_MODEL"`
	APIKey      string        `yaml:"api_key" json:"-" env:"LLM_API_KEY"`
	BaseURL     string        `yaml:"base_url" json:"base_url" env:"LLM_BASE_URL"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
}

// DefaultConfig returns the Gemini configuration used for topic summaries.
func DefaultConfig() Config {
	return Config{
		Provider:    Gemini,
		Model:       "gemini-2.0-flash",
		MaxRetries:  3,
		Timeout:     60 * time.Second,
		MaxTokens:   1024,
		Temperature: 0.4,
	}
}

// Client generates text from a prompt.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Provider() Provider
}

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request holds the parameters for one generation call.
type Request struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Prompt builds a single-turn request.
func Prompt(system, user string) *Request {
	return &Request{System: system, Messages: []Message{{Role: "user", Content: user}}}
}

// Response is the result of one generation call.
type Response struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensIn     int    `json:"tokens_in"`
	TokensOut    int    `json:"tokens_out"`
	Model        string `json:"model"`
	LatencyMs    int64  `json:"latency_ms"`
}

// NewClient creates a client for cfg.Provider. Hosted providers without an
// API key fail with ErrNotConfigured.
func NewClient(cfg Config) (Client, error) {
	def := DefaultConfig()
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	switch Provider(strings.ToLower(string(cfg.Provider))) {
	case Gemini:
		return newGeminiClient(cfg)
	case OpenAI:
		return newOpenAIClient(cfg, OpenAI)
	case MiniMax:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.minimax.io/v1"
		}
		return newOpenAIClient(cfg, MiniMax)
	case Ollama:
		return newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

func (r *Request) maxTokens(cfg Config) int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return cfg.MaxTokens
}

func (r *Request) temperature(cfg Config) float64 {
	if r.Temperature > 0 {
		return r.Temperature
	}
	return cfg.Temperature
}
