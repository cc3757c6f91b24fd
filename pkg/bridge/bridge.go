// Package bridge composes one Frontend with one Backend (or Router) and a
// middleware chain into the single orchestration point the rest of the
// gateway calls: decode, normalize, branch stream/non-stream, encode.
package bridge

import (
	"context"
	"time"

	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/capability"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/corebridge/llmgateway/pkg/middleware"
	"github.com/corebridge/llmgateway/pkg/schema"
	"github.com/corebridge/llmgateway/pkg/structured"
	"github.com/google/uuid"
)

// Bridge composes exactly one Frontend with exactly one Backend (which may
// itself be a Router, since Router implements adapter.Backend) and threads
// a middleware chain around both unary and streaming calls.
type Bridge struct {
	Frontend   adapter.Frontend
	Backend    adapter.Backend
	Middleware middleware.Chain
}

// New builds a Bridge from a Frontend, a Backend (or Router), and an
// ordered list of middleware (first registered is outermost).
func New(frontend adapter.Frontend, backend adapter.Backend, mw ...middleware.Middleware) *Bridge {
	return &Bridge{Frontend: frontend, Backend: backend, Middleware: middleware.NewChain(mw...)}
}

// Chat runs the full pipeline: dialect request -> IR -> middleware chain ->
// backend -> middleware chain -> IR -> dialect response.
func (b *Bridge) Chat(ctx context.Context, inboundRequest interface{}) (interface{}, error) {
	req, err := b.Frontend.ToIR(ctx, inboundRequest)
	if err != nil {
		return nil, err
	}
	resp, err := b.ChatIR(ctx, req)
	if err != nil {
		return nil, err
	}
	return b.Frontend.FromIR(ctx, resp, inboundRequest)
}

// ChatStream runs the full streaming pipeline, converting the caller's
// dialect request into IR, running the middleware-wrapped backend stream,
// and converting each chunk back into the dialect's native stream shape.
func (b *Bridge) ChatStream(ctx context.Context, inboundRequest interface{}) (<-chan interface{}, error) {
	req, err := b.Frontend.ToIR(ctx, inboundRequest)
	if err != nil {
		return nil, err
	}
	chunks, err := b.ChatStreamIR(ctx, req)
	if err != nil {
		return nil, err
	}
	return b.Frontend.StreamFromIR(ctx, chunks, inboundRequest)
}

// ChatIR runs the pipeline starting from an already-built IR request,
// skipping frontend conversion entirely.
func (b *Bridge) ChatIR(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
	req, warnings := b.prepare(req)

	handler := b.Middleware.WrapUnary(func(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
		resp, err := b.Backend.Execute(ctx, req)
		if err != nil {
			return ir.ChatResponse{}, err
		}
		resp.Metadata.Provenance.Backend = b.Backend.Metadata().Name
		return resp, nil
	})

	resp, err := handler(ctx, req)
	if err != nil {
		return ir.ChatResponse{}, err
	}
	resp.Warnings = append(resp.Warnings, warnings...)
	return resp, nil
}

// ChatStreamIR runs the streaming pipeline starting from an IR request.
func (b *Bridge) ChatStreamIR(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
	req, warnings := b.prepare(req)
	req.Stream = true

	handler := b.Middleware.WrapStream(func(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
		return b.Backend.ExecuteStream(ctx, req)
	})

	chunks, err := handler(ctx, req)
	if err != nil || len(warnings) == 0 {
		return chunks, err
	}

	// Attach normalization warnings to the terminal done chunk so streaming
	// callers see them the same way unary callers do.
	out := make(chan ir.StreamChunk)
	go func() {
		defer close(out)
		for c := range chunks {
			if c.Type == ir.ChunkDone {
				c.Warnings = append(c.Warnings, warnings...)
			}
			out <- c
		}
	}()
	return out, nil
}

// prepare assigns a RequestID if absent, stamps Frontend provenance, and
// normalizes system messages/parameters against the backend's declared
// capabilities. Warnings recorded by normalization are returned for the
// caller to attach to the response.
func (b *Bridge) prepare(req ir.ChatRequest) (ir.ChatRequest, []ir.Warning) {
	req = req.Clone()
	if req.Metadata.RequestID == "" {
		req.Metadata.RequestID = uuid.NewString()
	}
	if req.Metadata.Timestamp.IsZero() {
		req.Metadata.Timestamp = time.Now()
	}
	if b.Frontend != nil {
		req.Metadata.Provenance.Frontend = b.Frontend.Metadata().Name
	}

	caps := b.Backend.Metadata().Capabilities
	result := capability.Normalize(req, caps)
	out := result.Request
	// Backends extract system prompts from the message sequence themselves
	// (each FromIR/toWireRequest re-derives SystemParameter); reinject so a
	// separate-parameter backend still sees its system text in-band.
	if result.System != nil {
		var sysMessages []ir.Message
		if len(result.System.Multiple) > 0 {
			for _, s := range result.System.Multiple {
				sysMessages = append(sysMessages, ir.NewTextMessage(ir.RoleSystem, s))
			}
		} else if result.System.Single != "" {
			sysMessages = append(sysMessages, ir.NewTextMessage(ir.RoleSystem, result.System.Single))
		}
		out.Messages = append(sysMessages, out.Messages...)
	}

	return out, result.Warnings
}

// GenerateObject runs a unary structured-output generation against spec,
// rewriting the request per PrepareRequest, dispatching through ChatIR, and
// validating the extracted value against spec's schema.
func (b *Bridge) GenerateObject(ctx context.Context, req ir.ChatRequest, spec ir.SchemaSpec, validator schema.Validator) (structured.Result, error) {
	prepared := structured.PrepareRequest(req, spec)
	resp, err := b.ChatIR(ctx, prepared)
	if err != nil {
		return structured.Result{}, err
	}
	return structured.Generate(resp, spec, validator)
}

// GenerateObjectStream runs a streaming structured-output generation,
// yielding progressively more complete partials as content arrives.
func (b *Bridge) GenerateObjectStream(ctx context.Context, req ir.ChatRequest, spec ir.SchemaSpec, validator schema.Validator) (<-chan structured.PartialResult, error) {
	prepared := structured.PrepareRequest(req, spec)
	chunks, err := b.ChatStreamIR(ctx, prepared)
	if err != nil {
		return nil, err
	}
	return structured.StreamPartials(chunks, spec, validator), nil
}
