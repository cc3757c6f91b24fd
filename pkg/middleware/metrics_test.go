package middleware_test

import (
	"context"
	"testing"

	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/corebridge/llmgateway/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsRequestsAndErrors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := middleware.NewMetrics(reg)

	ok := m.WrapUnary(func(ctx context.Context, r ir.ChatRequest) (ir.ChatResponse, error) {
		return ir.ChatResponse{}, nil
	})
	failing := m.WrapUnary(func(ctx context.Context, r ir.ChatRequest) (ir.ChatResponse, error) {
		return ir.ChatResponse{}, &ir.RateLimitError{}
	})

	r := req("r1")
	r.Metadata.Provenance.Backend = "openai"
	_, err := ok(context.Background(), r)
	require.NoError(t, err)
	_, err = failing(context.Background(), r)
	require.Error(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var sawErrors, sawRequests bool
	for _, mf := range mfs {
		switch mf.GetName() {
		case "gateway_errors_total":
			sawErrors = true
			require.Equal(t, float64(1), sumCounter(mf))
		case "gateway_requests_total":
			sawRequests = true
			require.Equal(t, float64(2), sumCounter(mf))
		}
	}
	require.True(t, sawErrors)
	require.True(t, sawRequests)
}

func TestMetrics_BackendLabelComesFromResponseProvenance(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := middleware.NewMetrics(reg)

	h := m.WrapUnary(func(ctx context.Context, r ir.ChatRequest) (ir.ChatResponse, error) {
		resp := ir.ChatResponse{}
		resp.Metadata.Provenance.Backend = "anthropic"
		return resp, nil
	})

	_, err := h(context.Background(), req("r2"))
	require.NoError(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var sawLabel bool
	for _, mf := range mfs {
		if mf.GetName() != "gateway_requests_total" {
			continue
		}
		for _, met := range mf.GetMetric() {
			for _, lp := range met.GetLabel() {
				if lp.GetName() == "backend" {
					sawLabel = true
					require.Equal(t, "anthropic", lp.GetValue())
				}
			}
		}
	}
	require.True(t, sawLabel)
}

func sumCounter(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}
