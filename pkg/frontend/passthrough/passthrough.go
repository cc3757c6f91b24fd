// Package passthrough implements the reference Frontend whose conversions
// are the identity on IR: the dialect IS the IR, so
// ToIR/FromIR/StreamFromIR only need to assert the inbound shape and mint a
// RequestID when the caller omitted one.
package passthrough

import (
	"context"

	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/google/uuid"
)

// Frontend is the identity Frontend: inbound and outbound dialect values are
// themselves ir.ChatRequest / ir.ChatResponse / ir.StreamChunk.
type Frontend struct{}

// New returns a ready-to-use passthrough Frontend.
func New() *Frontend { return &Frontend{} }

func (f *Frontend) Metadata() ir.AdapterMetadata {
	return ir.AdapterMetadata{Name: "passthrough", Version: "v1", Provider: "ir"}
}

func (f *Frontend) ToIR(ctx context.Context, inboundRequest interface{}) (ir.ChatRequest, error) {
	req, ok := inboundRequest.(ir.ChatRequest)
	if !ok {
		return ir.ChatRequest{}, &ir.ValidationError{Message: "passthrough frontend requires an ir.ChatRequest"}
	}
	if len(req.Messages) == 0 {
		return ir.ChatRequest{}, &ir.ValidationError{Field: "messages", Message: "at least one message is required"}
	}
	if req.Metadata.RequestID == "" {
		req.Metadata.RequestID = uuid.NewString()
	}
	return req, nil
}

func (f *Frontend) FromIR(ctx context.Context, resp ir.ChatResponse, original interface{}) (interface{}, error) {
	return resp, nil
}

func (f *Frontend) StreamFromIR(ctx context.Context, chunks <-chan ir.StreamChunk, original interface{}) (<-chan interface{}, error) {
	out := make(chan interface{})
	go func() {
		defer close(out)
		for c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var _ adapter.Frontend = (*Frontend)(nil)
