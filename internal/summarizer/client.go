package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

const (
	DefaultTimeout     = 45 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2.0
	DefaultMaxBackoff  = 30 * time.Second
)

// RetryConfig bounds how long and how often a Client tries a backend.
type RetryConfig struct {
	// Timeout is the deadline of a single attempt.
	Timeout     time.Duration
	MaxAttempts int
	// BackoffBase is raised to the attempt number to get the wait in seconds.
	BackoffBase float64
	MaxBackoff  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// Client retries a Backend on timeouts and transient server errors.
type Client struct {
	backend Backend
	cfg     RetryConfig
	sleep   func(ctx context.Context, d time.Duration) error
	log     *slog.Logger
}

// NewClient builds a retrying client. Zero fields of cfg take their defaults.
func NewClient(backend Backend, cfg RetryConfig, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	return &Client{
		backend: backend,
		cfg:     cfg,
		sleep:   sleepContext,
		log:     log,
	}
}

// Summarize runs up to MaxAttempts attempts and returns the first summary.
func (c *Client) Summarize(ctx context.Context, req Request) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		res := c.attempt(ctx, req)

		switch res.Outcome {
		case OutcomeSuccess:
			if attempt > 1 {
				c.log.InfoContext(ctx, "Summarization succeeded after retry",
					"backend", c.backend.Name(),
					"attempt", attempt)
			}

			return res.Summary, nil
		case OutcomeTerminal:
			return "", fmt.Errorf("%s attempt %d: %w", c.backend.Name(), attempt, res.Err)
		}

		lastErr = res.Err
		if attempt == c.cfg.MaxAttempts {
			break
		}

		wait := c.backoff(attempt)
		c.log.WarnContext(ctx, "Retrying summarization",
			"error", res.Err,
			"backend", c.backend.Name(),
			"attempt", attempt,
			"maxAttempts", c.cfg.MaxAttempts,
			"wait", wait)

		if err := c.sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("wait before retry: %w", err)
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.cfg.MaxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, req Request) Result {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res := c.backend.Attempt(attemptCtx, req)
	if res.Outcome == OutcomeSuccess {
		return res
	}

	if err := ctx.Err(); err != nil {
		return Terminal(err)
	}

	if res.Outcome == OutcomeTerminal && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return Retryable(fmt.Errorf("%w: %w", ErrTimeout, res.Err))
	}

	return res
}

// backoff returns BackoffBase^attempt seconds, capped at MaxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	nanos := math.Pow(c.cfg.BackoffBase, float64(attempt)) * float64(time.Second)
	if math.IsNaN(nanos) || nanos >= float64(c.cfg.MaxBackoff) {
		return c.cfg.MaxBackoff
	}

	return time.Duration(nanos)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
