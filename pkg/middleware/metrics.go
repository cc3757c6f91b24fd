package middleware

import (
	"context"
	"time"

	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records Prometheus counters/histograms for request count,
// latency, and error count by class.
type Metrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics registers the gateway's request/error/latency metrics against
// reg. Pass prometheus.NewRegistry() in tests to avoid polluting the
// default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total chat requests dispatched by backend.",
		}, []string{"backend"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Total chat request errors by backend and error class.",
		}, []string{"backend", "class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Chat request latency in seconds by backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
	}
	reg.MustRegister(m.requests, m.errors, m.latency)
	return m
}

func errorClass(err error) string {
	switch err.(type) {
	case *ir.AuthenticationError:
		return "authentication"
	case *ir.AuthorizationError:
		return "authorization"
	case *ir.RateLimitError:
		return "rate_limit"
	case *ir.ValidationError:
		return "validation"
	case *ir.ProviderError:
		return "provider"
	case *ir.NetworkError:
		return "network"
	case *ir.StreamError:
		return "stream"
	case *ir.AdapterConversionError:
		return "adapter_conversion"
	case *ir.TimeoutError:
		return "timeout"
	case *ir.CancelledError:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (m *Metrics) WrapUnary(next UnaryHandler) UnaryHandler {
	return func(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		// Backend provenance is stamped by the terminal handler, so it is
		// only known on the response; fall back to the request's for errors.
		backend := resp.Metadata.Provenance.Backend
		if backend == "" {
			backend = req.Metadata.Provenance.Backend
		}
		m.latency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(backend).Inc()
		if err != nil {
			m.errors.WithLabelValues(backend, errorClass(err)).Inc()
		}
		return resp, err
	}
}

func (m *Metrics) WrapStream(next StreamHandler) StreamHandler {
	return func(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
		backend := req.Metadata.Provenance.Backend
		start := time.Now()
		chunks, err := next(ctx, req)
		if err != nil {
			m.errors.WithLabelValues(backend, "stream_start").Inc()
			return nil, err
		}
		m.requests.WithLabelValues(backend).Inc()

		out := make(chan ir.StreamChunk)
		go func() {
			defer close(out)
			for chunk := range chunks {
				if chunk.Type == ir.ChunkDone {
					m.latency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
				} else if chunk.Type == ir.ChunkError {
					m.latency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
					m.errors.WithLabelValues(backend, "stream").Inc()
				}
				out <- chunk
			}
		}()
		return out, nil
	}
}
