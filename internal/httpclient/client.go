// Package httpclient provides the outbound HTTP client used for transcoder,
// storage and webhook validation calls.
//
// A Client adds a circuit breaker shared by every request to one backend,
// bounded retries with exponential backoff, optional token bucket throttling
// and transparent response decompression.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrCircuitOpen   = errors.New("circuit breaker is open")
	ErrMaxRetries    = errors.New("max retries exceeded")
	ErrBodyNotReplay = errors.New("request body cannot be replayed for retry")
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultRetryAttempts    = 3
	DefaultRetryDelay       = time.Second
	DefaultRetryMaxDelay    = 30 * time.Second
	DefaultCircuitThreshold = 5
	DefaultCircuitTimeout   = 30 * time.Second
	DefaultUserAgent        = "vodarr-httpclient"

	acceptEncoding = "gzip, deflate, br"
)

// Config configures a Client.
type Config struct {
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// CircuitThreshold consecutive failures open the circuit for
	// CircuitTimeout, after which a single trial request is let through.
	CircuitThreshold int
	CircuitTimeout   time.Duration

	UserAgent string
	Logger    *slog.Logger

	// Limiter throttles attempts, retries included. Nil means unlimited.
	Limiter *rate.Limiter

	// BaseClient overrides the underlying client, for custom transports.
	BaseClient *http.Client
}

// DefaultConfig returns the defaults used by every vodarr backend client.
func DefaultConfig() Config {
	return Config{
		Timeout:          DefaultTimeout,
		RetryAttempts:    DefaultRetryAttempts,
		RetryDelay:       DefaultRetryDelay,
		RetryMaxDelay:    DefaultRetryMaxDelay,
		CircuitThreshold: DefaultCircuitThreshold,
		CircuitTimeout:   DefaultCircuitTimeout,
		UserAgent:        DefaultUserAgent,
	}
}

// Client is a resilient HTTP client for one backend.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// New returns a Client for cfg.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base := cfg.BaseClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		http:    base,
		breaker: NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitTimeout),
		logger:  cfg.Logger,
	}
}

// Get issues a GET for url.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// Do sends req, retrying transport failures and 429/502/503/504 responses.
// A request with a body is retried only when req.GetBody can replay it.
// Any other status, including 5xx, is returned to the caller as is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if req.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	target := redactURL(req.URL)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.DebugContext(ctx, "retrying request",
				slog.String("url", target),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			if err := rewindBody(req); err != nil {
				return nil, fmt.Errorf("%w: %v", err, lastErr)
			}
		}

		if c.cfg.Limiter != nil {
			if err := c.cfg.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}
		resp, err := c.attempt(ctx, req, target)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
}

// attempt sends req once. A non-nil error means the attempt may be retried,
// unless it is a context error.
func (c *Client) attempt(ctx context.Context, req *http.Request, target string) (*http.Response, error) {
	if !c.breaker.Allow() {
		c.logger.WarnContext(ctx, "circuit breaker open, skipping request", slog.String("url", target))
		return nil, ErrCircuitOpen
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.breaker.Failure()
		c.logger.WarnContext(ctx, "request failed",
			slog.String("method", req.Method),
			slog.String("url", target),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()))
		return nil, err
	}
	if isRetryableStatus(resp.StatusCode) {
		c.breaker.Failure()
		resp.Body.Close()
		c.logger.WarnContext(ctx, "retryable status code",
			slog.String("method", req.Method),
			slog.String("url", target),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", elapsed))
		return nil, fmt.Errorf("retryable status code: %d", resp.StatusCode)
	}

	c.breaker.Success()
	c.logger.DebugContext(ctx, "request completed",
		slog.String("method", req.Method),
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed))
	resp.Body = c.decodeBody(resp)
	return resp, nil
}

// backoff doubles RetryDelay per attempt, capped at RetryMaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.cfg.RetryMaxDelay > 0 && d >= c.cfg.RetryMaxDelay {
			return c.cfg.RetryMaxDelay
		}
	}
	return d
}

// CircuitState returns the current circuit breaker state.
func (c *Client) CircuitState() CircuitState {
	return c.breaker.State()
}

func rewindBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return ErrBodyNotReplay
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBodyNotReplay, err)
	}
	req.Body = body
	return nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
