package bridge_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicbe "github.com/corebridge/llmgateway/pkg/backend/anthropic"
	"github.com/corebridge/llmgateway/pkg/bridge"
	openaife "github.com/corebridge/llmgateway/pkg/frontend/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An OpenAI-dialect request dispatched over an Anthropic-wire backend must
// come back as a well-formed OpenAI-shaped response.
func TestChat_OpenAIDialectOverAnthropicBackend(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_1", "model": "claude-haiku-4-5", "stop_reason": "end_turn",
			"content": [{"type": "text", "text": "pong"}],
			"usage": {"input_tokens": 3, "output_tokens": 1}
		}`)
	}))
	defer srv.Close()

	backend := anthropicbe.New(anthropicbe.Config{APIKey: "test-key", BaseURL: srv.URL})
	b := bridge.New(openaife.New(), backend)

	inbound := openaife.ChatRequest{
		Model: "gpt-4",
		Messages: []openaife.Message{
			{Role: "user", Content: "ping"},
		},
	}

	out, err := b.Chat(context.Background(), inbound)
	require.NoError(t, err)

	resp, ok := out.(openaife.ChatResponse)
	require.True(t, ok)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "pong", resp.Choices[0].Message.Content)
	assert.NotEmpty(t, resp.Choices[0].Message.Content)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 4, resp.Usage.TotalTokens)

	assert.Contains(t, string(gotBody), `"messages"`)
}
