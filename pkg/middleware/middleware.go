// Package middleware implements the onion-layered chain that wraps a
// Bridge's unary and streaming calls: the first registered middleware is
// outermost, and each layer calls next() to invoke the one beneath it.
package middleware

import (
	"context"

	"github.com/corebridge/llmgateway/pkg/ir"
)

// UnaryHandler performs one non-streaming chat call.
type UnaryHandler func(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error)

// StreamHandler performs one streaming chat call, returning a channel of
// chunks that the caller drains to completion.
type StreamHandler func(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error)

// Middleware wraps both the unary and the streaming handler shapes. A
// middleware that only cares about one shape still implements both methods
// but may pass the handler through unchanged in the other.
type Middleware interface {
	WrapUnary(next UnaryHandler) UnaryHandler
	WrapStream(next StreamHandler) StreamHandler
}

// Chain composes middlewares into a single pair of handlers around a
// terminal (innermost) handler. The first element of middlewares is
// outermost: it sees the request first and the response last.
type Chain struct {
	middlewares []Middleware
}

// NewChain builds a Chain from middlewares in outermost-to-innermost order.
func NewChain(middlewares ...Middleware) Chain {
	return Chain{middlewares: middlewares}
}

// WrapUnary builds the final UnaryHandler by wrapping terminal with each
// middleware from innermost to outermost, so that in call order the first
// registered middleware runs first.
func (c Chain) WrapUnary(terminal UnaryHandler) UnaryHandler {
	handler := terminal
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handler = c.middlewares[i].WrapUnary(handler)
	}
	return handler
}

// WrapStream builds the final StreamHandler the same way WrapUnary does.
func (c Chain) WrapStream(terminal StreamHandler) StreamHandler {
	handler := terminal
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handler = c.middlewares[i].WrapStream(handler)
	}
	return handler
}
