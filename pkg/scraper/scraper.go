// Package scraper provides the outbound HTTP capability used by source
// adapters and helpers for turning remote markup into plain text.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBodySize bounds how much of a remote response is read.
const maxBodySize = 10 * 1024 * 1024

// Options configures a Client.
type Options struct {
	UserAgent string        `yaml:"user_agent" env:"FETCH_USER_AGENT"`
	Timeout   time.Duration `yaml:"timeout" env:"FETCH_TIMEOUT"`
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() Options {
	return Options{
		UserAgent: "TopicDigest/1.0 (+https://github.com/RobinCoderZhao/topicdigest)",
		Timeout:   30 * time.Second,
	}
}

// Request describes one outbound call.
type Request struct {
	Method  string
	URL     string
	Params  map[string]string
	Headers map[string]string
}

// Response holds the status and body of a completed call.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Doer performs an outbound request. *Client implements it.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Client performs outbound HTTP requests with a per-call timeout.
type Client struct {
	http *http.Client
	opts Options
}

// New creates a Client. A nil httpClient gets a default transport.
func New(opts Options, httpClient *http.Client) *Client {
	def := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient, opts: opts}
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

// Do issues the request. Any status code is returned as a Response; only
// transport failures (DNS, connect, timeout, read) are errors.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	target, err := withParams(r.URL, r.Params)
	if err != nil {
		return nil, err
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", r.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		URL:        target,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

func withParams(raw string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %s: %w", raw, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResolveURL resolves ref against base. Absolute refs are returned as is;
// unparseable input falls back to ref.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
