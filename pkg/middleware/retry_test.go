package middleware_test

import (
	"context"
	"testing"
	"time"

	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/corebridge/llmgateway/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	retry := middleware.NewRetry(middleware.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Sleep:        func(ctx context.Context, d time.Duration) error { return nil },
	})

	handler := retry.WrapUnary(func(ctx context.Context, r ir.ChatRequest) (ir.ChatResponse, error) {
		calls++
		if calls < 3 {
			return ir.ChatResponse{}, &ir.ProviderError{StatusCode: 503}
		}
		return ir.ChatResponse{FinishReason: ir.FinishStop}, nil
	})

	resp, err := handler(context.Background(), req("r1"))
	require.NoError(t, err)
	assert.Equal(t, ir.FinishStop, resp.FinishReason)
	assert.Equal(t, 3, calls)
}

func TestRetry_NonRetryableShortCircuits(t *testing.T) {
	t.Parallel()

	calls := 0
	retry := middleware.NewRetry(middleware.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Sleep:        func(ctx context.Context, d time.Duration) error { return nil },
	})

	handler := retry.WrapUnary(func(ctx context.Context, r ir.ChatRequest) (ir.ChatResponse, error) {
		calls++
		return ir.ChatResponse{}, &ir.AuthenticationError{}
	})

	_, err := handler(context.Background(), req("r1"))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	retry := middleware.NewRetry(middleware.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Sleep:        func(ctx context.Context, d time.Duration) error { return nil },
	})

	handler := retry.WrapUnary(func(ctx context.Context, r ir.ChatRequest) (ir.ChatResponse, error) {
		calls++
		return ir.ChatResponse{}, &ir.NetworkError{}
	})

	_, err := handler(context.Background(), req("r1"))
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StreamPassesThroughUnchanged(t *testing.T) {
	t.Parallel()

	retry := middleware.NewRetry(middleware.RetryConfig{})
	called := false
	terminal := func(ctx context.Context, r ir.ChatRequest) (<-chan ir.StreamChunk, error) {
		called = true
		ch := make(chan ir.StreamChunk)
		close(ch)
		return ch, nil
	}

	handler := retry.WrapStream(terminal)
	_, err := handler(context.Background(), req("r1"))
	require.NoError(t, err)
	assert.True(t, called)
}
