package anthropic_test

import (
	"context"
	"testing"

	"github.com/corebridge/llmgateway/pkg/frontend/anthropic"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToIR_PullsSystemIntoSeparateMessage(t *testing.T) {
	t.Parallel()

	f := anthropic.New()
	req := anthropic.MessagesRequest{
		Model:     "claude-haiku-4-5",
		MaxTokens: 256,
		System:    "be terse",
		Messages:  []anthropic.Message{{Role: "user", Content: "hi"}},
	}

	out, err := f.ToIR(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, ir.RoleSystem, out.Messages[0].Role)
	assert.Equal(t, "be terse", out.Messages[0].Text())
	require.NotNil(t, out.Parameters.MaxTokens)
	assert.Equal(t, 256, *out.Parameters.MaxTokens)
}

func TestToIR_RejectsEmptyMessages(t *testing.T) {
	t.Parallel()

	f := anthropic.New()
	_, err := f.ToIR(context.Background(), anthropic.MessagesRequest{Model: "claude-haiku-4-5"})
	require.Error(t, err)
	var ve *ir.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestFromIR_MapsFinishReasonToStopReason(t *testing.T) {
	t.Parallel()

	f := anthropic.New()
	resp := ir.ChatResponse{
		Message:      ir.NewTextMessage(ir.RoleAssistant, "hello"),
		FinishReason: ir.FinishToolCalls,
		Usage:        &ir.Usage{PromptTokens: 4, CompletionTokens: 1},
	}

	out, err := f.FromIR(context.Background(), resp, nil)
	require.NoError(t, err)
	wire := out.(anthropic.MessagesResponse)
	assert.Equal(t, "tool_use", wire.StopReason)
	require.Len(t, wire.Content, 1)
	assert.Equal(t, "hello", wire.Content[0].Text)
}

func TestStreamFromIR_EmitsNamedEvents(t *testing.T) {
	t.Parallel()

	f := anthropic.New()
	in := make(chan ir.StreamChunk, 3)
	in <- ir.StreamChunk{Type: ir.ChunkStart, Metadata: &ir.Metadata{RequestID: "r1"}}
	in <- ir.StreamChunk{Type: ir.ChunkContent, Delta: "hi"}
	in <- ir.StreamChunk{Type: ir.ChunkDone, FinishReason: ir.FinishStop}
	close(in)

	out, err := f.StreamFromIR(context.Background(), in, anthropic.MessagesRequest{Model: "claude-haiku-4-5"})
	require.NoError(t, err)

	var types []string
	for e := range out {
		types = append(types, e.(anthropic.StreamEvent).Type)
	}
	assert.Equal(t, []string{"message_start", "content_block_delta", "message_delta", "message_stop"}, types)
}
