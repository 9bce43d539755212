// Package adapter fetches and normalizes raw items from remote sources.
//
// Generic adapters exist per declared source type (JSON API, RSS/Atom feed,
// HTML page). Sources whose native API needs several calls per fetch get a
// specialized adapter, chosen by name through the Registry.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
)

// Adapter fetches raw items for one source.
type Adapter interface {
	Fetch(ctx context.Context, src model.Source) ([]model.RawItem, error)
}

// ErrParse marks a response that could not be decoded (bad JSON, XML or HTML).
var ErrParse = errors.New("parse error")

// FetchError is a transient failure of one outbound call: a transport error
// (StatusCode 0) or a non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%d error for url %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err came from the network layer.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

func parseErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// Options holds the fetch discipline shared by all adapters.
type Options struct {
	// Delay is the politeness pause after each adapter call.
	Delay time.Duration `yaml:"delay" env:"FETCH_DELAY"`
	// MaxItems caps how many items one fetch returns.
	MaxItems int `yaml:"max_items" env:"MAX_ITEMS_PER_SOURCE"`
}

// DefaultOptions mirrors the production settings.
func DefaultOptions() Options {
	return Options{Delay: time.Second, MaxItems: 10}
}

// base carries the HTTP client and options every adapter needs.
type base struct {
	client scraper.Doer
	opts   Options
	logger *slog.Logger
}

func newBase(client scraper.Doer, opts Options, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultOptions().MaxItems
	}
	return base{client: client, opts: opts, logger: logger}
}

// get performs one call and converts transport failures and non-2xx
// statuses into *FetchError.
func (b base) get(ctx context.Context, req scraper.Request) (*scraper.Response, error) {
	resp, err := b.client.Do(ctx, req)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	if !resp.OK() {
		return nil, &FetchError{URL: req.URL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
