// Package registry talks to the crates.io package index and resolves crate
// identifiers extracted from source into published package names.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"playbench/pkg/cache"
	"playbench/pkg/httputil"
)

const httpTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when a crate doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)

// Client provides shared HTTP functionality for registry API access.
// It handles response caching, retry logic, and common request headers.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
	prefix  string
	headers map[string]string
}

// NewClient creates a Client with the given cache backend and default headers.
// Cached responses are stored under prefix-qualified keys for ttl.
// Pass nil for headers if no default headers are needed.
func NewClient(backend cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	return &Client{
		http:    &http.Client{Timeout: httpTimeout},
		cache:   backend,
		ttl:     ttl,
		prefix:  prefix,
		headers: headers,
	}
}

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; on success, v is stored in the cache.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	key = c.prefix + key
	if !refresh {
		if data, hit, _ := c.cache.Get(ctx, key); hit {
			if json.Unmarshal(data, v) == nil {
				return nil
			}
		}
	}
	if err := httputil.RetryWithBackoff(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
	}
	return nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
// It uses the client's default headers; retries are the caller's concern
// (wrap the call with [Cached] or [httputil.Retry]).
func (c *Client) Get(ctx context.Context, url string, v any) error {
	body, err := c.doRequest(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

func (c *Client) doRequest(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
