package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const (
	AcceptFeed = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
	AcceptHTML = "text/html, application/xhtml+xml, */*;q=0.8"
)

// Config holds the shared HTTP client configuration.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxBytes       int64
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ErrBodyTooLarge is returned when a response exceeds the configured size cap.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client performs GET requests with retry and a response size cap.
type Client struct {
	httpClient     *http.Client
	userAgent      string
	maxBytes       int64
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 << 20
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:      cfg.UserAgent,
		maxBytes:       cfg.MaxBytes,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "source_client"),
	}
}

// Get fetches url and returns its body. Bodies over the size cap are rejected.
func (c *Client) Get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

	var body []byte

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err = c.doRequest(req)
		if err == nil {
			return body, nil
		}

		if attempt == c.maxAttempts || !isRetryable(err) {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"url", url,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if c.maxAttempts > 1 && isRetryable(err) {
		return nil, fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
	}
	return nil, err
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrBodyTooLarge, c.maxBytes, req.URL)
	}

	return body, nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if c.maxBackoff > 0 && backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	return true
}
