package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GriffinCanCode/applibrary/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when the origin host has failed repeatedly.
var ErrCircuitOpen = errors.New("origin unavailable: circuit breaker open")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download failed: HTTP %d", e.Code)
}

// Options configures the client
type Options struct {
	// Timeout bounds a whole request including the body; zero disables it
	Timeout time.Duration
	// Retries is the number of extra attempts on connection errors and 5xx
	Retries   int
	RetryWait time.Duration
	// RateLimit caps requests per second; zero is unlimited
	RateLimit float64
	UserAgent string
	Breaker   resilience.Settings
	Logger    *zap.Logger
}

// DefaultOptions returns single-attempt options with no timeout.
func DefaultOptions() Options {
	return Options{
		UserAgent: "AppLibrary/1.0",
		RetryWait: time.Second,
		Breaker: resilience.Settings{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
	}
}

// Client wraps resty with rate limiting, per-host circuit breakers and
// retrying transport.
type Client struct {
	Resty    *resty.Client
	Limiter  *rate.Limiter
	Breakers *resilience.Group
	mu       sync.RWMutex
}

// NewClient creates an HTTP client for bundle downloads
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	if opts.RetryWait > 0 {
		retryClient.RetryWaitMin = opts.RetryWait
		retryClient.RetryWaitMax = 30 * opts.RetryWait
	}
	retryClient.Logger = &leveledLogger{s: opts.Logger.Sugar()}
	// Hand the last response back so status codes reach the caller
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.New().
		SetTransport(retryClient.StandardClient().Transport).
		SetRetryCount(0).
		SetHeader("User-Agent", opts.UserAgent)
	if opts.Timeout > 0 {
		restyClient.SetTimeout(opts.Timeout)
	}

	c := &Client{
		Resty:    restyClient,
		Breakers: resilience.NewGroup(opts.Breaker),
	}
	c.SetRateLimit(opts.RateLimit)
	return c
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Request creates a new request after waiting on the rate limiter
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	c.mu.RLock()
	limiter := c.Limiter
	c.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}
	return c.Resty.R().SetContext(ctx), nil
}

// Download streams rawURL into dest and returns the number of bytes written.
// The destination is removed on any failure.
func (c *Client) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid url: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	var size int64
	err = c.Breakers.Get(u.Host).Do(func() error {
		req, err := c.Request(ctx)
		if err != nil {
			return err
		}

		resp, err := req.SetOutput(dest).Get(rawURL)
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return &StatusError{Code: resp.StatusCode(), URL: rawURL}
		}

		stat, err := os.Stat(dest)
		if err != nil {
			return fmt.Errorf("failed to stat downloaded file: %w", err)
		}
		size = stat.Size()
		return nil
	})

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return 0, ErrCircuitOpen
	case err != nil:
		os.Remove(dest)
		return 0, err
	}
	return size, nil
}

// BreakerStates reports per-host breaker state for diagnostics
func (c *Client) BreakerStates() map[string]string {
	states := c.Breakers.States()
	out := make(map[string]string, len(states))
	for host, state := range states {
		out[host] = state.String()
	}
	return out
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l *leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l *leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
