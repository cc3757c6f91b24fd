package middleware

import (
	"context"

	"github.com/corebridge/llmgateway/pkg/ir"
)

// ValidateFunc inspects a request before next() is invoked and returns a
// non-nil error (typically *ir.ValidationError) to reject it.
type ValidateFunc func(ir.ChatRequest) error

// RedactFunc substitutes PII or other sensitive content in a request before
// it is passed downstream. It runs only after Validate passes.
type RedactFunc func(ir.ChatRequest) ir.ChatRequest

// Validation rejects requests pre-next() with a caller-supplied check, and
// optionally redacts PII by substitution before calling next().
type Validation struct {
	Validate ValidateFunc
	Redact   RedactFunc
}

func (m *Validation) check(req ir.ChatRequest) (ir.ChatRequest, error) {
	if m.Validate != nil {
		if err := m.Validate(req); err != nil {
			return req, err
		}
	}
	if m.Redact != nil {
		req = m.Redact(req)
	}
	return req, nil
}

func (m *Validation) WrapUnary(next UnaryHandler) UnaryHandler {
	return func(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
		req, err := m.check(req)
		if err != nil {
			return ir.ChatResponse{}, err
		}
		return next(ctx, req)
	}
}

func (m *Validation) WrapStream(next StreamHandler) StreamHandler {
	return func(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
		req, err := m.check(req)
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}
