package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RobinCoderZhao/topicdigest/pkg/llm"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "legacy-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Path != "data/aggregator.db" || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Content.MaxItemsPerTopic != 20 || cfg.Content.ContentRetention != 7*24*time.Hour {
		t.Fatalf("unexpected content defaults %+v", cfg.Content)
	}
	if cfg.Adapters.MaxItems != 10 || cfg.Adapters.Delay != time.Second || cfg.Fetch.Timeout != 30*time.Second {
		t.Fatalf("unexpected fetch defaults %+v %+v", cfg.Adapters, cfg.Fetch)
	}
	if cfg.LLM.Provider != llm.Gemini || cfg.LLM.APIKey != "legacy-key" {
		t.Fatalf("expected gemini with legacy key, got %+v", cfg.LLM)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "topicdigest.yaml")
	content := `
database:
  path: ${DATA_DIR}/digest.db
llm:
  provider: ollama
  model: llama3
content:
  max_items_per_topic: 30
  summary_window: 12h
scheduler:
  scrape: 2h
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATA_DIR", "/var/lib/topicdigest")
	t.Setenv("FETCH_DELAY", "250ms")
	t.Setenv("HTTP_ADDR", ":9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Path != "/var/lib/topicdigest/digest.db" {
		t.Errorf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.LLM.Provider != llm.Ollama || cfg.LLM.Model != "llama3" || cfg.LLM.MaxRetries != 3 {
		t.Errorf("unexpected llm config %+v", cfg.LLM)
	}
	if cfg.Content.MaxItemsPerTopic != 30 || cfg.Content.SummaryWindow != 12*time.Hour || cfg.Content.Workers != 4 {
		t.Errorf("unexpected content config %+v", cfg.Content)
	}
	if cfg.Scheduler.Scrape != 2*time.Hour || cfg.Scheduler.Summarize != 4*time.Hour+30*time.Minute {
		t.Errorf("unexpected scheduler config %+v", cfg.Scheduler)
	}
	if cfg.Adapters.Delay != 250*time.Millisecond || cfg.HTTP.Addr != ":9000" {
		t.Errorf("env overrides not applied: %+v %+v", cfg.Adapters, cfg.HTTP)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = ""
	cfg.Content.Workers = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate_TelegramNeedsChat(t *testing.T) {
	cfg := Default()
	cfg.Notify.Telegram.BotToken = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for telegram without chat id")
	}
	cfg.Notify.Telegram.ChatID = "42"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}
