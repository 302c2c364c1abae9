// Package source downloads the forum request page, parses it into items and
// classifies them.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"khamsat_bot/internal/model"
)

// Defaults for Client.
const (
	DefaultMaxItems = 10
	DefaultMaxAge   = 3 * time.Minute
	DefaultTimeout  = 10 * time.Second

	maxBodySize = 5 * 1024 * 1024
	userAgent   = "Mozilla/5.0"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Parser turns a downloaded page into items in source order.
// base is used to resolve relative links.
type Parser interface {
	Parse(r io.Reader, base *url.URL) ([]model.Item, error)
}

// Classifier assigns category labels to a title.
type Classifier interface {
	Classify(title string) []string
}

// Result holds the outcome of one fetch.
// All is the newest page of items; Recent is the subset posted within the
// configured age threshold.
type Result struct {
	Recent []model.Item
	All    []model.Item
}

// Options configures a Client. Zero values fall back to the defaults.
type Options struct {
	MaxItems int
	MaxAge   time.Duration
	Timeout  time.Duration
}

// Client fetches and classifies forum requests.
type Client struct {
	client     HTTPClient
	url        *url.URL
	parser     Parser
	classifier Classifier
	maxItems   int
	maxAge     time.Duration
	timeout    time.Duration
	now        func() time.Time
}

// New creates a Client for the page at rawURL.
func New(client HTTPClient, rawURL string, parser Parser, classifier Classifier, opts Options) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("source url %q must be absolute", rawURL)
	}

	c := &Client{
		client:     client,
		url:        u,
		parser:     parser,
		classifier: classifier,
		maxItems:   opts.MaxItems,
		maxAge:     opts.MaxAge,
		timeout:    opts.Timeout,
		now:        time.Now,
	}
	if c.maxItems <= 0 {
		c.maxItems = DefaultMaxItems
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// NewHTTPClient returns an http.Client bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// SetClock overrides the time source used for recency checks.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// Fetch downloads the page and returns its items. On any failure it returns
// an empty Result together with the error.
func (c *Client) Fetch(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.download(ctx)
	if err != nil {
		return Result{}, err
	}

	items, err := c.parser.Parse(bytes.NewReader(body), c.url)
	if err != nil {
		return Result{}, fmt.Errorf("parse page: %w", err)
	}
	if len(items) > c.maxItems {
		items = items[:c.maxItems]
	}
	for i := range items {
		items[i].Categories = c.classifier.Classify(items[i].Title)
	}

	return Result{
		Recent: Recent(items, c.now(), c.maxAge),
		All:    items,
	}, nil
}

func (c *Client) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Recent returns the items posted no more than maxAge before now.
// Items without a parsed timestamp are never recent.
func Recent(items []model.Item, now time.Time, maxAge time.Duration) []model.Item {
	var recent []model.Item
	for _, it := range items {
		if IsRecent(it, now, maxAge) {
			recent = append(recent, it)
		}
	}
	return recent
}

// IsRecent reports whether a single item is within maxAge of now.
func IsRecent(it model.Item, now time.Time, maxAge time.Duration) bool {
	if it.PostedAt == nil {
		return false
	}
	return now.Sub(*it.PostedAt) <= maxAge
}
