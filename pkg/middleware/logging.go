package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/corebridge/llmgateway/pkg/ir"
)

// Logging emits one structured log line per request/response via
// log/slog, carrying requestId, backend, latencyMs, and finishReason. It observes only and
// never alters IR semantics.
type Logging struct {
	Logger *slog.Logger
}

// NewLogging builds a Logging middleware. A nil logger falls back to
// slog.Default().
func NewLogging(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{Logger: logger}
}

func (m *Logging) WrapUnary(next UnaryHandler) UnaryHandler {
	return func(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		latency := time.Since(start)
		if err != nil {
			m.Logger.Error("chat request failed",
				"requestId", req.Metadata.RequestID,
				"backend", req.Metadata.Provenance.Backend,
				"latencyMs", latency.Milliseconds(),
				"error", err)
			return resp, err
		}
		m.Logger.Info("chat request completed",
			"requestId", req.Metadata.RequestID,
			"backend", resp.Metadata.Provenance.Backend,
			"latencyMs", latency.Milliseconds(),
			"finishReason", resp.FinishReason)
		return resp, nil
	}
}

func (m *Logging) WrapStream(next StreamHandler) StreamHandler {
	return func(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
		start := time.Now()
		chunks, err := next(ctx, req)
		if err != nil {
			m.Logger.Error("chat stream failed to start",
				"requestId", req.Metadata.RequestID,
				"backend", req.Metadata.Provenance.Backend,
				"error", err)
			return nil, err
		}

		out := make(chan ir.StreamChunk)
		go func() {
			defer close(out)
			for chunk := range chunks {
				if chunk.Type == ir.ChunkDone {
					m.Logger.Info("chat stream completed",
						"requestId", req.Metadata.RequestID,
						"backend", req.Metadata.Provenance.Backend,
						"latencyMs", time.Since(start).Milliseconds(),
						"finishReason", chunk.FinishReason)
				} else if chunk.Type == ir.ChunkError {
					m.Logger.Error("chat stream errored",
						"requestId", req.Metadata.RequestID,
						"backend", req.Metadata.Provenance.Backend,
						"latencyMs", time.Since(start).Milliseconds(),
						"code", chunk.Code)
				}
				out <- chunk
			}
		}()
		return out, nil
	}
}
