package gemini_test

import (
	"context"
	"testing"

	"github.com/corebridge/llmgateway/pkg/frontend/gemini"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToIR_MapsRolesAndSystemInstruction(t *testing.T) {
	t.Parallel()

	f := gemini.New()
	req := gemini.GenerateRequest{
		Model:             "gemini-2.5-flash",
		SystemInstruction: &gemini.Content{Parts: []gemini.Part{{Text: "be terse"}}},
		Contents: []gemini.Content{
			{Role: "user", Parts: []gemini.Part{{Text: "hi"}}},
			{Role: "model", Parts: []gemini.Part{{Text: "hello"}}},
			{Role: "user", Parts: []gemini.Part{{Text: "bye"}}},
		},
	}

	out, err := f.ToIR(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 4)
	assert.Equal(t, ir.RoleSystem, out.Messages[0].Role)
	assert.Equal(t, "be terse", out.Messages[0].Text())
	assert.Equal(t, ir.RoleAssistant, out.Messages[2].Role)
	assert.Equal(t, "gemini-2.5-flash", out.Parameters.Model)
	assert.NotEmpty(t, out.Metadata.RequestID)
}

func TestToIR_GenerationConfig(t *testing.T) {
	t.Parallel()

	temp := 0.2
	topK := 40
	f := gemini.New()
	req := gemini.GenerateRequest{
		Model:    "gemini-2.5-flash",
		Contents: []gemini.Content{{Role: "user", Parts: []gemini.Part{{Text: "hi"}}}},
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:     &temp,
			TopK:            &topK,
			MaxOutputTokens: 128,
			StopSequences:   []string{"END"},
		},
	}

	out, err := f.ToIR(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, out.Parameters.Temperature)
	assert.Equal(t, 0.2, *out.Parameters.Temperature)
	require.NotNil(t, out.Parameters.MaxTokens)
	assert.Equal(t, 128, *out.Parameters.MaxTokens)
	assert.Equal(t, []string{"END"}, out.Parameters.StopSequences)
}

func TestToIR_RejectsMissingModelAndContents(t *testing.T) {
	t.Parallel()

	f := gemini.New()
	var ve *ir.ValidationError

	_, err := f.ToIR(context.Background(), gemini.GenerateRequest{
		Contents: []gemini.Content{{Parts: []gemini.Part{{Text: "hi"}}}},
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "model", ve.Field)

	_, err = f.ToIR(context.Background(), gemini.GenerateRequest{Model: "gemini-2.5-flash"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "contents", ve.Field)
}

func TestFromIR_MapsFinishReason(t *testing.T) {
	t.Parallel()

	f := gemini.New()
	resp := ir.ChatResponse{
		Message:      ir.NewTextMessage(ir.RoleAssistant, "hello"),
		FinishReason: ir.FinishLength,
		Usage:        &ir.Usage{PromptTokens: 4, CompletionTokens: 1, TotalTokens: 5},
	}

	out, err := f.FromIR(context.Background(), resp, nil)
	require.NoError(t, err)
	wire := out.(gemini.GenerateResponse)
	require.Len(t, wire.Candidates, 1)
	assert.Equal(t, "MAX_TOKENS", wire.Candidates[0].FinishReason)
	assert.Equal(t, "model", wire.Candidates[0].Content.Role)
	assert.Equal(t, "hello", wire.Candidates[0].Content.Parts[0].Text)
	require.NotNil(t, wire.UsageMetadata)
	assert.Equal(t, 5, wire.UsageMetadata.TotalTokenCount)
}

func TestStreamFromIR_EmitsCandidateChunks(t *testing.T) {
	t.Parallel()

	f := gemini.New()
	in := make(chan ir.StreamChunk, 4)
	in <- ir.StreamChunk{Type: ir.ChunkStart, Metadata: &ir.Metadata{RequestID: "r1"}}
	in <- ir.StreamChunk{Type: ir.ChunkContent, Delta: "He"}
	in <- ir.StreamChunk{Type: ir.ChunkContent, Delta: "llo"}
	in <- ir.StreamChunk{Type: ir.ChunkDone, FinishReason: ir.FinishStop}
	close(in)

	out, err := f.StreamFromIR(context.Background(), in, gemini.GenerateRequest{Model: "gemini-2.5-flash"})
	require.NoError(t, err)

	var got []gemini.GenerateResponse
	for e := range out {
		got = append(got, e.(gemini.GenerateResponse))
	}
	require.Len(t, got, 3)
	assert.Equal(t, "He", got[0].Candidates[0].Content.Parts[0].Text)
	assert.Equal(t, "llo", got[1].Candidates[0].Content.Parts[0].Text)
	assert.Equal(t, "STOP", got[2].Candidates[0].FinishReason)
}

func TestStreamFromIR_ErrorChunkSurfacesAsErrorObject(t *testing.T) {
	t.Parallel()

	f := gemini.New()
	in := make(chan ir.StreamChunk, 2)
	in <- ir.StreamChunk{Type: ir.ChunkStart, Metadata: &ir.Metadata{RequestID: "r1"}}
	in <- ir.StreamChunk{Type: ir.ChunkError, Code: "aborted", ErrorText: "cancelled"}
	close(in)

	out, err := f.StreamFromIR(context.Background(), in, gemini.GenerateRequest{Model: "gemini-2.5-flash"})
	require.NoError(t, err)

	var last interface{}
	for e := range out {
		last = e
	}
	errObj, ok := last.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "aborted", errObj["error"].(map[string]interface{})["status"])
}
