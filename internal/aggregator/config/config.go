// Package config assembles the service configuration from defaults, an
// optional YAML file, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/adapter"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/catalog"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/pipeline"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/scheduler"
	"github.com/RobinCoderZhao/topicdigest/internal/logging"
	pkgconfig "github.com/RobinCoderZhao/topicdigest/pkg/config"
	"github.com/RobinCoderZhao/topicdigest/pkg/llm"
	"github.com/RobinCoderZhao/topicdigest/pkg/notify"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
	"github.com/RobinCoderZhao/topicdigest/pkg/storage"
)

// Config is the complete service configuration.
type Config struct {
	Database  storage.Config      `yaml:"database"`
	HTTP      HTTPConfig          `yaml:"http"`
	LLM       llm.Config          `yaml:"llm"`
	Fetch     scraper.Options     `yaml:"fetch"`
	Adapters  adapter.Options     `yaml:"adapters"`
	Content   pipeline.Options    `yaml:"content"`
	Scheduler scheduler.Intervals `yaml:"scheduler"`
	Catalog   catalog.Paths       `yaml:"catalog"`
	Log       logging.Config      `yaml:"log"`
	Notify    notify.Config       `yaml:"notify"`
}

// HTTPConfig configures the read API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// PublicURL is the externally reachable base address, used in links.
	PublicURL       string        `yaml:"public_url" env:"PUBLIC_URL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:  storage.Config{Path: "data/aggregator.db", BusyTimeout: 5 * time.Second},
		HTTP:      HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		LLM:       llm.DefaultConfig(),
		Fetch:     scraper.DefaultOptions(),
		Adapters:  adapter.DefaultOptions(),
		Content:   pipeline.DefaultOptions(),
		Scheduler: scheduler.DefaultIntervals(),
		Catalog:   catalog.DefaultPaths(),
		Log:       logging.Config{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path may be empty or point to a missing
// file; defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := pkgconfig.LoadOrDefault(path, cfg); err != nil {
		return nil, err
	}
	// GEMINI_API_KEY is the historical name of the key.
	if cfg.LLM.APIKey == "" && cfg.LLM.Provider == llm.Gemini {
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Content.Workers < 0 {
		errs = append(errs, fmt.Errorf("content.workers must not be negative, got %d", c.Content.Workers))
	}
	if c.Adapters.Delay < 0 {
		errs = append(errs, fmt.Errorf("adapters.delay must not be negative, got %v", c.Adapters.Delay))
	}
	if tg := c.Notify.Telegram; (tg.BotToken == "") != (tg.ChatID == "") {
		errs = append(errs, errors.New("notify.telegram needs both bot_token and chat_id"))
	}
	return errors.Join(errs...)
}
