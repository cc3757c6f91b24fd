package middleware

import (
	"context"

	"github.com/corebridge/llmgateway/pkg/ir"
)

// Transform applies pure IR-in/IR-out functions to a request before next()
// and/or to a response after it returns. Either function may be nil to
// skip that side. For streams, ResponseChunk (if set) is applied to every
// chunk as it passes through, re-sequenced so a chunk-merging/splitting
// transform can't violate sequence monotonicity.
type Transform struct {
	Request      func(ir.ChatRequest) ir.ChatRequest
	Response     func(ir.ChatResponse) ir.ChatResponse
	ResponseChunk func(ir.StreamChunk) []ir.StreamChunk
}

func (m *Transform) WrapUnary(next UnaryHandler) UnaryHandler {
	return func(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
		if m.Request != nil {
			req = m.Request(req)
		}
		resp, err := next(ctx, req)
		if err != nil {
			return resp, err
		}
		if m.Response != nil {
			resp = m.Response(resp)
		}
		return resp, nil
	}
}

func (m *Transform) WrapStream(next StreamHandler) StreamHandler {
	return func(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
		if m.Request != nil {
			req = m.Request(req)
		}
		chunks, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		if m.ResponseChunk == nil {
			return chunks, nil
		}

		out := make(chan ir.StreamChunk)
		go func() {
			defer close(out)
			var seq ir.Sequencer
			for chunk := range chunks {
				for _, transformed := range m.ResponseChunk(chunk) {
					transformed.Sequence = seq.Next()
					out <- transformed
				}
			}
		}()
		return out, nil
	}
}
