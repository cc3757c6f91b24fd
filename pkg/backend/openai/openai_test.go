package openai_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corebridge/llmgateway/pkg/backend/openai"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() ir.ChatRequest {
	return ir.ChatRequest{
		Messages:   []ir.Message{ir.NewTextMessage(ir.RoleUser, "hi")},
		Parameters: ir.Parameters{Model: "gpt-4o-mini"},
		Metadata:   ir.Metadata{RequestID: "r1"},
	}
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{
			"id": "chatcmpl-1", "model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`)
	}))
	defer srv.Close()

	b := openai.New(openai.Config{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := b.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Message.Text())
	assert.Equal(t, ir.FinishStop, resp.FinishReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestExecute_RateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited", "type": "rate_limit_error"}}`)
	}))
	defer srv.Close()

	b := openai.New(openai.Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := b.Execute(context.Background(), testRequest())
	require.Error(t, err)
	var rle *ir.RateLimitError
	require.ErrorAs(t, err, &rle)
	require.NotNil(t, rle.RetryAfter)
}

func TestExecuteStream_AccumulatedMode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"He"},"finish_reason":null}]}`,
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"llo"},"finish_reason":null}]}`,
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}`,
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	defer srv.Close()

	req := testRequest()
	req.StreamMode = ir.StreamModeAccumulated

	b := openai.New(openai.Config{APIKey: "test-key", BaseURL: srv.URL})
	ch, err := b.ExecuteStream(context.Background(), req)
	require.NoError(t, err)

	var accumulated []string
	var done *ir.StreamChunk
	for c := range ch {
		switch c.Type {
		case ir.ChunkContent:
			accumulated = append(accumulated, c.Accumulated)
		case ir.ChunkDone:
			chunk := c
			done = &chunk
		}
	}
	assert.Equal(t, []string{"He", "Hello", "Hello world"}, accumulated)
	require.NotNil(t, done)
	require.NotNil(t, done.Message)
	assert.Equal(t, "Hello world", done.Message.Text())
}

func TestExecuteStream_SequenceIsGapFreeFromZero(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"a"},"finish_reason":null}]}`,
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"b"},"finish_reason":null}]}`,
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	defer srv.Close()

	b := openai.New(openai.Config{APIKey: "test-key", BaseURL: srv.URL})
	ch, err := b.ExecuteStream(context.Background(), testRequest())
	require.NoError(t, err)

	want := 0
	for c := range ch {
		assert.Equal(t, want, c.Sequence)
		want++
	}
}

func TestExecuteStream_EmitsStartContentDoneOnSentinel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":null}]}`,
			`data: {"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	defer srv.Close()

	b := openai.New(openai.Config{APIKey: "test-key", BaseURL: srv.URL})
	ch, err := b.ExecuteStream(context.Background(), testRequest())
	require.NoError(t, err)

	var types []ir.ChunkType
	for c := range ch {
		types = append(types, c.Type)
	}
	assert.Equal(t, []ir.ChunkType{ir.ChunkStart, ir.ChunkContent, ir.ChunkDone}, types)
}
