package openai_test

import (
	"context"
	"testing"

	"github.com/corebridge/llmgateway/pkg/frontend/openai"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToIR_ConvertsMessagesAndParameters(t *testing.T) {
	t.Parallel()

	f := openai.New()
	req := openai.ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []openai.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
	}

	out, err := f.ToIR(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", out.Parameters.Model)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, ir.RoleSystem, out.Messages[0].Role)
	assert.NotEmpty(t, out.Metadata.RequestID)
}

func TestToIR_RejectsMissingModel(t *testing.T) {
	t.Parallel()

	f := openai.New()
	_, err := f.ToIR(context.Background(), openai.ChatRequest{Messages: []openai.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	var ve *ir.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestFromIR_BuildsChoiceAndUsage(t *testing.T) {
	t.Parallel()

	f := openai.New()
	resp := ir.ChatResponse{
		Message:      ir.NewTextMessage(ir.RoleAssistant, "hello"),
		FinishReason: ir.FinishStop,
		Usage:        &ir.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}

	out, err := f.FromIR(context.Background(), resp, nil)
	require.NoError(t, err)
	wire := out.(openai.ChatResponse)
	require.Len(t, wire.Choices, 1)
	assert.Equal(t, "hello", wire.Choices[0].Message.Content)
	assert.Equal(t, "stop", wire.Choices[0].FinishReason)
	require.NotNil(t, wire.Usage)
	assert.Equal(t, 5, wire.Usage.TotalTokens)
}

func TestStreamFromIR_EmitsRoleDeltaThenDone(t *testing.T) {
	t.Parallel()

	f := openai.New()
	in := make(chan ir.StreamChunk, 3)
	in <- ir.StreamChunk{Type: ir.ChunkStart, Metadata: &ir.Metadata{RequestID: "r1"}}
	in <- ir.StreamChunk{Type: ir.ChunkContent, Delta: "hi"}
	in <- ir.StreamChunk{Type: ir.ChunkDone, FinishReason: ir.FinishStop}
	close(in)

	out, err := f.StreamFromIR(context.Background(), in, openai.ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)

	var events []interface{}
	for e := range out {
		events = append(events, e)
	}
	require.Len(t, events, 4) // role-start + content delta + finish + [DONE]
	assert.Equal(t, "[DONE]", events[3])
}
