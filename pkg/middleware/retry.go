package middleware

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/corebridge/llmgateway/pkg/ir"
)

// RetryConfig controls the Retry middleware's backoff schedule. ShouldRetry
// defaults to ir.IsRetryable so only recognized error classes are retried.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool

	// ShouldRetry overrides the default ir.IsRetryable classification.
	ShouldRetry func(error) bool

	// Sleep is overridable for tests; defaults to a context-aware timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns the documented exponential-backoff defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry re-invokes next() on retryable errors up to MaxAttempts, honoring a
// RateLimitError's RetryAfter when present and aborting immediately on
// context cancellation. It never wraps streaming calls: once a stream has
// started, retrying would require re-issuing an HTTP request mid-delivery,
// which is the Router's job (before any content is yielded), not a generic
// middleware's.
type Retry struct {
	Config RetryConfig
}

// NewRetry builds a Retry middleware, filling unset Config fields with
// DefaultRetryConfig's values.
func NewRetry(cfg RetryConfig) *Retry {
	d := DefaultRetryConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = d.InitialDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = d.MaxDelay
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = d.Multiplier
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = ir.IsRetryable
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Retry{Config: cfg}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *Retry) delay(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		return *retryAfter
	}
	d := float64(m.Config.InitialDelay) * math.Pow(m.Config.Multiplier, float64(attempt-1))
	if d > float64(m.Config.MaxDelay) {
		d = float64(m.Config.MaxDelay)
	}
	if m.Config.Jitter {
		d *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

func (m *Retry) WrapUnary(next UnaryHandler) UnaryHandler {
	return func(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
		var lastErr error
		for attempt := 1; attempt <= m.Config.MaxAttempts; attempt++ {
			if ctx.Err() != nil {
				return ir.ChatResponse{}, &ir.CancelledError{Message: ctx.Err().Error()}
			}
			resp, err := next(ctx, req)
			if err == nil {
				return resp, nil
			}
			lastErr = err
			if !m.Config.ShouldRetry(err) || attempt == m.Config.MaxAttempts {
				return ir.ChatResponse{}, err
			}
			var retryAfter *time.Duration
			if rle, ok := err.(*ir.RateLimitError); ok {
				retryAfter = rle.RetryAfter
			}
			if sleepErr := m.Config.Sleep(ctx, m.delay(attempt, retryAfter)); sleepErr != nil {
				return ir.ChatResponse{}, &ir.CancelledError{Message: sleepErr.Error()}
			}
		}
		return ir.ChatResponse{}, lastErr
	}
}

// WrapStream passes through unchanged; retrying a streaming call is the
// Router's fallback responsibility, scoped to before the first content
// chunk, not a generic middleware concern.
func (m *Retry) WrapStream(next StreamHandler) StreamHandler {
	return next
}
