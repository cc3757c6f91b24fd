package gemini_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corebridge/llmgateway/pkg/backend/gemini"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() ir.ChatRequest {
	return ir.ChatRequest{
		Messages:   []ir.Message{ir.NewTextMessage(ir.RoleUser, "hi")},
		Parameters: ir.Parameters{Model: "gemini-2.5-flash"},
		Metadata:   ir.Metadata{RequestID: "r1"},
	}
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "key=test-key")
		fmt.Fprint(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "hello"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 1, "totalTokenCount": 4}
		}`)
	}))
	defer srv.Close()

	b := gemini.New(gemini.Config{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := b.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Message.Text())
	assert.Equal(t, ir.FinishStop, resp.FinishReason)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
}

func TestExecuteStream_EmitsStartContentDone(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"hi"}]},"finishReason":""}]}`,
			`data: {"candidates":[{"content":{"role":"model","parts":[{"text":""}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1,"totalTokenCount":2}}`,
		}
		for _, e := range events {
			fmt.Fprintln(w, e)
		}
	}))
	defer srv.Close()

	b := gemini.New(gemini.Config{APIKey: "test-key", BaseURL: srv.URL})
	ch, err := b.ExecuteStream(context.Background(), testRequest())
	require.NoError(t, err)

	var types []ir.ChunkType
	for c := range ch {
		types = append(types, c.Type)
	}
	assert.Equal(t, []ir.ChunkType{ir.ChunkStart, ir.ChunkContent, ir.ChunkDone}, types)
}
