package bridge_test

import (
	"context"
	"testing"

	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/bridge"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	meta        ir.AdapterMetadata
	lastRequest ir.ChatRequest
	resp        ir.ChatResponse
	err         error
}

func (b *fakeBackend) Metadata() ir.AdapterMetadata { return b.meta }

func (b *fakeBackend) Execute(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
	b.lastRequest = req
	if b.err != nil {
		return ir.ChatResponse{}, b.err
	}
	return b.resp, nil
}

func (b *fakeBackend) ExecuteStream(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
	b.lastRequest = req
	out := make(chan ir.StreamChunk, 1)
	out <- ir.StreamChunk{Type: ir.ChunkDone, FinishReason: ir.FinishStop}
	close(out)
	return out, nil
}

func (b *fakeBackend) ListModels(ctx context.Context, filter adapter.ListModelsFilter) (adapter.ListModelsResult, error) {
	return adapter.ListModelsResult{}, nil
}

func (b *fakeBackend) EstimateCost(req ir.ChatRequest) (float64, error) { return 0, nil }

func (b *fakeBackend) HealthCheck(ctx context.Context) error { return nil }

var _ adapter.Backend = (*fakeBackend)(nil)

func TestChatIR_StampsProvenanceAndRequestID(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		meta: ir.AdapterMetadata{Name: "fake-backend", Capabilities: ir.Capabilities{SystemMessageStrategy: ir.SystemInMessages}},
		resp: ir.ChatResponse{Message: ir.NewTextMessage(ir.RoleAssistant, "hi"), FinishReason: ir.FinishStop},
	}
	b := bridge.New(nil, backend)

	req := ir.ChatRequest{Messages: []ir.Message{ir.NewTextMessage(ir.RoleUser, "hello")}}
	resp, err := b.ChatIR(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fake-backend", resp.Metadata.Provenance.Backend)
	assert.NotEmpty(t, backend.lastRequest.Metadata.RequestID)
}

func TestChatIR_ReinjectsSystemMessageForSeparateParameterBackend(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		meta: ir.AdapterMetadata{Name: "fake-backend", Capabilities: ir.Capabilities{SystemMessageStrategy: ir.SystemSeparateParameter}},
		resp: ir.ChatResponse{Message: ir.NewTextMessage(ir.RoleAssistant, "hi"), FinishReason: ir.FinishStop},
	}
	b := bridge.New(nil, backend)

	req := ir.ChatRequest{
		Messages: []ir.Message{
			ir.NewTextMessage(ir.RoleSystem, "be terse"),
			ir.NewTextMessage(ir.RoleUser, "hello"),
		},
	}
	_, err := b.ChatIR(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, backend.lastRequest.Messages, 2)
	assert.Equal(t, ir.RoleSystem, backend.lastRequest.Messages[0].Role)
	assert.Equal(t, "be terse", backend.lastRequest.Messages[0].Text())
}

func TestChatIR_TruncatesStopSequencesWithWarning(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		meta: ir.AdapterMetadata{Name: "fake-backend", Capabilities: ir.Capabilities{
			SystemMessageStrategy: ir.SystemInMessages,
			MaxStopSequences:      2,
		}},
		resp: ir.ChatResponse{Message: ir.NewTextMessage(ir.RoleAssistant, "hi"), FinishReason: ir.FinishStop},
	}
	b := bridge.New(nil, backend)

	req := ir.ChatRequest{
		Messages:   []ir.Message{ir.NewTextMessage(ir.RoleUser, "hello")},
		Parameters: ir.Parameters{StopSequences: []string{"a", "b", "c", "d"}},
	}
	resp, err := b.ChatIR(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, backend.lastRequest.Parameters.StopSequences)
	require.NotEmpty(t, resp.Warnings)
	assert.Equal(t, "truncated-stop-sequences", resp.Warnings[0].Type)
}

func TestChatStreamIR_SetsStreamFlagAndDrainsChunks(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{meta: ir.AdapterMetadata{Name: "fake-backend"}}
	b := bridge.New(nil, backend)

	req := ir.ChatRequest{Messages: []ir.Message{ir.NewTextMessage(ir.RoleUser, "hi")}}
	chunks, err := b.ChatStreamIR(context.Background(), req)
	require.NoError(t, err)

	var count int
	for c := range chunks {
		count++
		assert.Equal(t, ir.ChunkDone, c.Type)
	}
	assert.Equal(t, 1, count)
	assert.True(t, backend.lastRequest.Stream)
}
