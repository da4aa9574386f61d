// Package fetch downloads remote schemas over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds a whole request, including reading the body.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBytes caps the size of a downloaded schema.
	DefaultMaxBytes = 16 << 20

	userAgent = "jsoncheck"
)

// ErrTooLarge is returned when a response body exceeds the size limit.
var ErrTooLarge = errors.New("response body too large")

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Client fetches URLs with a request timeout, collapses concurrent requests
// for the same URL, and stops hammering hosts that keep failing.
type Client struct {
	http     *http.Client
	maxBytes int64
	log      *zap.Logger

	group singleflight.Group

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithMaxBytes sets the response size limit.
func WithMaxBytes(n int64) Option {
	return func(c *Client) { c.maxBytes = n }
}

// WithLogger sets the logger used for breaker state changes.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a Client with DefaultTimeout and DefaultMaxBytes.
func New(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: DefaultTimeout},
		maxBytes: DefaultMaxBytes,
		log:      zap.NewNop(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch GETs rawURL and returns the body. Concurrent calls for the same URL
// share one request.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	v, err, _ := c.group.Do(rawURL, func() (any, error) {
		return c.breaker(u.Host).Execute(func() (any, error) {
			return c.get(ctx, rawURL)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("fetch %s: host %s is failing: %w", rawURL, u.Host, err)
		}
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/schema+json, application/json;q=0.9, */*;q=0.1")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("fetch %s: %w (limit %d bytes)", rawURL, ErrTooLarge, c.maxBytes)
	}
	return body, nil
}

// breaker returns the circuit breaker for host, creating it on first use.
func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("schema host circuit breaker changed state",
				zap.String("host", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	c.breakers[host] = cb
	return cb
}
