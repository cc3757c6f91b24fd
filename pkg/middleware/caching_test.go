package middleware_test

import (
	"context"
	"testing"
	"time"

	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/corebridge/llmgateway/pkg/middleware"
	"github.com/corebridge/llmgateway/pkg/modelcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaching_HitAvoidsSecondCall(t *testing.T) {
	t.Parallel()

	calls := 0
	caching := middleware.NewCaching(modelcache.New(), func(r ir.ChatRequest) string {
		return r.Messages[0].Text()
	}, time.Minute)

	handler := caching.WrapUnary(func(ctx context.Context, r ir.ChatRequest) (ir.ChatResponse, error) {
		calls++
		return ir.ChatResponse{Message: ir.NewTextMessage(ir.RoleAssistant, "pong")}, nil
	})

	r := req("r1")
	resp1, err := handler(context.Background(), r)
	require.NoError(t, err)
	resp2, err := handler(context.Background(), r)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, resp1, resp2)
}

func TestCaching_HitReturnsCloneCallerCannotCorrupt(t *testing.T) {
	t.Parallel()

	caching := middleware.NewCaching(modelcache.New(), func(r ir.ChatRequest) string {
		return "k"
	}, time.Minute)

	handler := caching.WrapUnary(func(ctx context.Context, r ir.ChatRequest) (ir.ChatResponse, error) {
		return ir.ChatResponse{
			Message: ir.NewTextMessage(ir.RoleAssistant, "pong"),
			Usage:   &ir.Usage{TotalTokens: 7},
		}, nil
	})

	first, err := handler(context.Background(), req("r1"))
	require.NoError(t, err)
	first.Message.Content[0] = ir.TextBlock{Text: "mutated"}
	first.Usage.TotalTokens = 0

	second, err := handler(context.Background(), req("r1"))
	require.NoError(t, err)
	assert.Equal(t, "pong", second.Message.Text())
	require.NotNil(t, second.Usage)
	assert.Equal(t, 7, second.Usage.TotalTokens)
}

func TestCaching_StreamPassesThrough(t *testing.T) {
	t.Parallel()

	caching := middleware.NewCaching(modelcache.New(), func(r ir.ChatRequest) string { return "k" }, time.Minute)
	called := false
	handler := caching.WrapStream(func(ctx context.Context, r ir.ChatRequest) (<-chan ir.StreamChunk, error) {
		called = true
		ch := make(chan ir.StreamChunk)
		close(ch)
		return ch, nil
	})

	_, err := handler(context.Background(), req("r1"))
	require.NoError(t, err)
	assert.True(t, called)
}
