// Package adapter defines the Frontend and Backend contracts every dialect
// and provider implementation must satisfy to plug into a Bridge.
package adapter

import (
	"context"

	"github.com/corebridge/llmgateway/pkg/ir"
)

// Frontend converts between one vendor's inbound/outbound dialect and IR.
// inboundRequest and outboundResponse are dialect-shaped values (typically
// the result of decoding a JSON HTTP body); the Frontend owns their shape
// and the Bridge never inspects them directly.
type Frontend interface {
	Metadata() ir.AdapterMetadata

	// ToIR validates and converts a dialect-shaped inbound request into IR.
	// It must fail with *ir.ValidationError on any missing required field
	// and must preserve a caller-supplied RequestID, minting one if absent.
	ToIR(ctx context.Context, inboundRequest interface{}) (ir.ChatRequest, error)

	// FromIR converts an IR response back into the dialect's outbound
	// response shape. Must be deterministic and side-effect-free.
	FromIR(ctx context.Context, resp ir.ChatResponse, original interface{}) (interface{}, error)

	// StreamFromIR adapts an IR chunk channel into a channel of
	// dialect-native chunks (e.g. OpenAI-shaped SSE events). It must map
	// IR start/done 1:1 onto the dialect's own envelope and must not
	// swallow error chunks.
	StreamFromIR(ctx context.Context, chunks <-chan ir.StreamChunk, original interface{}) (<-chan interface{}, error)
}

// ListModelsFilter narrows a ListModels call to a subset of models.
type ListModelsFilter struct {
	Prefix string
}

// ModelSource records where a ListModels result came from.
type ModelSource string

const (
	ModelSourceStatic  ModelSource = "static"
	ModelSourceFetched ModelSource = "fetched"
	ModelSourceHybrid  ModelSource = "hybrid"
)

// ModelInfo describes one model a Backend can serve.
type ModelInfo struct {
	ID          string
	DisplayName string
}

// ListModelsResult is the outcome of a Backend.ListModels call.
type ListModelsResult struct {
	Models []ModelInfo
	Source ModelSource
}

// Backend converts IR into one provider's wire format, executes the HTTP
// call, and converts the result back into IR.
type Backend interface {
	Metadata() ir.AdapterMetadata

	// Execute performs a unary (non-streaming) call. Must honor ctx
	// cancellation and abort the in-flight HTTP request promptly.
	Execute(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error)

	// ExecuteStream performs a streaming call. The returned channel yields
	// exactly one start chunk, zero or more content/tool_call_delta
	// chunks, and exactly one terminal done or error chunk, then closes.
	// When ctx is cancelled mid-stream the channel closes without a
	// terminal chunk; no aborted error chunk is emitted.
	ExecuteStream(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error)

	// ListModels returns the models this backend can serve. Implementations
	// that only know a static list may ignore filter.
	ListModels(ctx context.Context, filter ListModelsFilter) (ListModelsResult, error)

	// EstimateCost returns a rough cost estimate in USD for req, or an
	// error if the backend does not publish pricing.
	EstimateCost(req ir.ChatRequest) (float64, error)

	// HealthCheck reports whether the backend is currently reachable.
	HealthCheck(ctx context.Context) error
}
