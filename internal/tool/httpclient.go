package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"
)

const (
	defaultMaxRetries = 3
	maxResponseBytes  = 1 << 20
	userAgent         = "jarvis/1.0"
)

// StatusError is a non-2xx reply from an upstream API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// HTTPClient wraps a pooled http.Client with retries for idempotent calls.
type HTTPClient struct {
	client     *http.Client
	logger     *slog.Logger
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// NewHTTPClient returns a client with connection pooling and the given
// per-request timeout.
func NewHTTPClient(timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &HTTPClient{
		client:     &http.Client{Timeout: timeout, Transport: transport},
		logger:     logger,
		maxRetries: defaultMaxRetries,
		backoff:    jitteredBackoff,
	}
}

// jitteredBackoff grows quadratically with up to 50% jitter.
func jitteredBackoff(attempt int) time.Duration {
	base := time.Duration(attempt*attempt) * time.Second
	return base + time.Duration(rand.Int63n(int64(base/2+1)))
}

// GetJSON fetches url and decodes the JSON reply into out. Network failures,
// 5xx and 429 are retried.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	body, err := c.get(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetText fetches url and returns the body as a string.
func (c *HTTPClient) GetText(ctx context.Context, url string) (string, error) {
	body, err := c.get(ctx, url, nil)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(body)), nil
}

// PostJSON sends payload once. Sends are not idempotent and never retried.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, header http.Header, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	setHeaders(req, header)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Warn("retrying request", "url", redactQuery(url), "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		setHeaders(req, header)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
			continue
		case resp.StatusCode/100 != 2:
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	}
	return nil, fmt.Errorf("gave up after %d retries: %w", c.maxRetries, lastErr)
}

func setHeaders(req *http.Request, header http.Header) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

// redactQuery drops the query string, which often carries an API key.
func redactQuery(u string) string {
	for i := 0; i < len(u); i++ {
		if u[i] == '?' {
			return u[:i]
		}
	}
	return u
}
