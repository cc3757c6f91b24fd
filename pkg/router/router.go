// Package router implements a Backend that delegates to one of N
// registered backends under a selection strategy, tracking per-backend
// health and falling back on failure.
package router

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/capability"
	"github.com/corebridge/llmgateway/pkg/ir"
)

// Strategy selects how a Router orders healthy backends for a given
// request.
type Strategy string

const (
	StrategyRoundRobin    Strategy = "round_robin"
	StrategyPriority      Strategy = "priority"
	StrategyRandom        Strategy = "random"
	StrategyLeastLatency  Strategy = "least_latency"
	StrategyComplexity    Strategy = "complexity"
	StrategyCostOptimized Strategy = "cost_optimized"
)

// HealthCheckConfig controls the optional background health-check loop.
type HealthCheckConfig struct {
	Enabled  bool
	Interval time.Duration
}

// EventType names a Router observable side effect.
type EventType string

const (
	EventBackendSelected EventType = "backend:selected"
	EventBackendFailed   EventType = "backend:failed"
	EventBackendSwitch   EventType = "backend:switch"
	EventBackendHealth   EventType = "backend:health"
)

// Event is delivered to the caller-supplied OnEvent callback.
type Event struct {
	Type    EventType
	Backend string
	From    string
	To      string
	Err     error
	Healthy bool
}

// CustomSelector lets a caller override strategy-based ordering entirely,
// returning the index (into Config.Backends) of the backend to try first.
type CustomSelector func(req ir.ChatRequest, candidates []adapter.Backend) (int, error)

// Config configures a Router.
type Config struct {
	Backends        []adapter.Backend
	Strategy        Strategy
	FallbackOnError bool
	HealthCheck     HealthCheckConfig
	// Threshold is the number of consecutive failures after which a
	// backend is marked unhealthy. Defaults to 3.
	Threshold int
	// Cooldown is how long an unhealthy backend stays out of rotation
	// before being retried. Defaults to 60s.
	Cooldown       time.Duration
	CustomSelector CustomSelector
	OnEvent        func(Event)
}

type health struct {
	total               uint64
	failures            uint64
	consecutiveFailures uint64
	lastFailureAtNanos  int64
	latencyEWMANanos    int64
}

func (h *health) recordSuccess(latency time.Duration) {
	atomic.AddUint64(&h.total, 1)
	atomic.StoreUint64(&h.consecutiveFailures, 0)
	prev := atomic.LoadInt64(&h.latencyEWMANanos)
	next := latency.Nanoseconds()
	if prev > 0 {
		next = prev/2 + next/2
	}
	atomic.StoreInt64(&h.latencyEWMANanos, next)
}

func (h *health) recordFailure() {
	atomic.AddUint64(&h.total, 1)
	atomic.AddUint64(&h.failures, 1)
	atomic.AddUint64(&h.consecutiveFailures, 1)
	atomic.StoreInt64(&h.lastFailureAtNanos, time.Now().UnixNano())
}

func (h *health) isHealthy(threshold int, cooldown time.Duration) bool {
	if atomic.LoadUint64(&h.consecutiveFailures) < uint64(threshold) {
		return true
	}
	last := atomic.LoadInt64(&h.lastFailureAtNanos)
	return time.Since(time.Unix(0, last)) >= cooldown
}

func (h *health) avgLatency() time.Duration {
	return time.Duration(atomic.LoadInt64(&h.latencyEWMANanos))
}

type entry struct {
	backend adapter.Backend
	name    string
	health  *health
}

// Router implements adapter.Backend by delegating each call to one of its
// configured backends.
type Router struct {
	cfg      Config
	entries  []*entry
	rrCursor uint64
	mu       sync.Mutex // guards health-check ticker lifecycle only
	stopCh   chan struct{}
}

// New builds a Router from cfg. Threshold and Cooldown default to 3 and 60s
// respectively when unset.
func New(cfg Config) *Router {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	r := &Router{cfg: cfg}
	for _, b := range cfg.Backends {
		r.entries = append(r.entries, &entry{backend: b, name: b.Metadata().Name, health: &health{}})
	}
	if cfg.HealthCheck.Enabled && cfg.HealthCheck.Interval > 0 {
		r.startHealthCheckLoop()
	}
	return r
}

func (r *Router) emit(e Event) {
	if r.cfg.OnEvent != nil {
		r.cfg.OnEvent(e)
	}
}

// Stop terminates the background health-check loop, if running.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
}

func (r *Router) startHealthCheckLoop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCh = make(chan struct{})
	stop := r.stopCh
	go func() {
		ticker := time.NewTicker(r.cfg.HealthCheck.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, e := range r.entries {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					err := e.backend.HealthCheck(ctx)
					cancel()
					healthy := err == nil
					if healthy {
						e.health.recordSuccess(0)
					}
					r.emit(Event{Type: EventBackendHealth, Backend: e.name, Healthy: healthy})
				}
			}
		}
	}()
}

func (r *Router) Metadata() ir.AdapterMetadata {
	return ir.AdapterMetadata{Name: "router", Version: "v1", Provider: "router", Capabilities: r.aggregateCapabilities()}
}

// aggregateCapabilities reports the most conservative capability set across
// all configured backends, used only as the Router's own declared
// capabilities (e.g. for an outer Bridge's informational purposes); actual
// dispatch re-normalizes per selected backend's real capabilities.
// SystemMessageStrategy is taken from the first backend.
func (r *Router) aggregateCapabilities() ir.Capabilities {
	if len(r.entries) == 0 {
		return ir.Capabilities{}
	}
	agg := r.entries[0].backend.Metadata().Capabilities
	for _, e := range r.entries[1:] {
		c := e.backend.Metadata().Capabilities
		agg.Streaming = agg.Streaming && c.Streaming
		agg.MultiModal = agg.MultiModal && c.MultiModal
		agg.Tools = agg.Tools && c.Tools
		agg.SupportsMultipleSystemMessages = agg.SupportsMultipleSystemMessages && c.SupportsMultipleSystemMessages
		agg.SupportsTemperature = agg.SupportsTemperature && c.SupportsTemperature
		agg.SupportsTopP = agg.SupportsTopP && c.SupportsTopP
		agg.SupportsTopK = agg.SupportsTopK && c.SupportsTopK
		agg.SupportsSeed = agg.SupportsSeed && c.SupportsSeed
		agg.SupportsFrequencyPenalty = agg.SupportsFrequencyPenalty && c.SupportsFrequencyPenalty
		agg.SupportsPresencePenalty = agg.SupportsPresencePenalty && c.SupportsPresencePenalty
		if c.MaxContextTokens < agg.MaxContextTokens {
			agg.MaxContextTokens = c.MaxContextTokens
		}
		if c.MaxStopSequences < agg.MaxStopSequences {
			agg.MaxStopSequences = c.MaxStopSequences
		}
	}
	return agg
}

// candidateOrder returns entry indices for healthy backends ordered per
// the configured strategy, ties broken by registration order.
func (r *Router) candidateOrder(req ir.ChatRequest) []int {
	var healthyIdx []int
	for i, e := range r.entries {
		if e.health.isHealthy(r.cfg.Threshold, r.cfg.Cooldown) {
			healthyIdx = append(healthyIdx, i)
		}
	}
	if len(healthyIdx) == 0 {
		return nil
	}

	if r.cfg.CustomSelector != nil {
		backends := make([]adapter.Backend, len(r.entries))
		for i, e := range r.entries {
			backends[i] = e.backend
		}
		if idx, err := r.cfg.CustomSelector(req, backends); err == nil {
			ordered := []int{idx}
			for _, i := range healthyIdx {
				if i != idx {
					ordered = append(ordered, i)
				}
			}
			return ordered
		}
	}

	switch r.cfg.Strategy {
	case StrategyRoundRobin:
		start := int(atomic.AddUint64(&r.rrCursor, 1)-1) % len(healthyIdx)
		return append(append([]int{}, healthyIdx[start:]...), healthyIdx[:start]...)

	case StrategyRandom:
		shuffled := append([]int{}, healthyIdx...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		return shuffled

	case StrategyLeastLatency:
		ordered := append([]int{}, healthyIdx...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return r.entries[ordered[i]].health.avgLatency() < r.entries[ordered[j]].health.avgLatency()
		})
		return ordered

	case StrategyComplexity:
		return r.complexityOrder(req, healthyIdx)

	case StrategyCostOptimized:
		ordered := append([]int{}, healthyIdx...)
		sort.SliceStable(ordered, func(i, j int) bool {
			ci, _ := r.entries[ordered[i]].backend.EstimateCost(req)
			cj, _ := r.entries[ordered[j]].backend.EstimateCost(req)
			return ci < cj
		})
		return ordered

	default: // StrategyPriority, or unset
		return healthyIdx
	}
}

// complexityOrder favors higher-context backends for token-heavy requests
// and smaller/cheaper ones for light requests.
func (r *Router) complexityOrder(req ir.ChatRequest, healthyIdx []int) []int {
	var tokens int
	for _, m := range req.Messages {
		tokens += ir.EstimateTokens(m.Text())
	}
	complex := tokens > 2000

	ordered := append([]int{}, healthyIdx...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ci := r.entries[ordered[i]].backend.Metadata().Capabilities.MaxContextTokens
		cj := r.entries[ordered[j]].backend.Metadata().Capabilities.MaxContextTokens
		if complex {
			return ci > cj
		}
		return ci < cj
	})
	return ordered
}

// shouldFallback decides whether a given dispatch error should advance to
// the next candidate rather than be returned to the caller.
func shouldFallback(err error) bool {
	switch err.(type) {
	case *ir.NetworkError, *ir.RateLimitError, *ir.ProviderError:
		return true
	}
	return ir.IsRetryable(err)
}

// reapplyCapabilities normalizes req against the chosen backend's actual
// capabilities immediately before dispatch, reinjecting any extracted
// system parameter as a synthetic system message the same way Bridge does,
// since the pool's backends may have heterogeneous SystemMessageStrategy
// values that the Router's own aggregate capabilities cannot represent.
func reapplyCapabilities(req ir.ChatRequest, caps ir.Capabilities) ir.ChatRequest {
	result := capability.Normalize(req, caps)
	out := result.Request
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
	return out
}

// Execute dispatches req to the first candidate backend, falling back to
// the next on a retryable-class error when FallbackOnError is set.
func (r *Router) Execute(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
	order := r.candidateOrder(req)
	var lastErr error
	for i, idx := range order {
		e := r.entries[idx]
		r.emit(Event{Type: EventBackendSelected, Backend: e.name})

		dispatchReq := reapplyCapabilities(req, e.backend.Metadata().Capabilities)
		start := time.Now()
		resp, err := e.backend.Execute(ctx, dispatchReq)
		if err == nil {
			e.health.recordSuccess(time.Since(start))
			return resp, nil
		}

		e.health.recordFailure()
		r.emit(Event{Type: EventBackendFailed, Backend: e.name, Err: err})
		lastErr = err
		if !r.cfg.FallbackOnError || !shouldFallback(err) {
			return ir.ChatResponse{}, err
		}
		if i+1 < len(order) {
			next := r.entries[order[i+1]]
			r.emit(Event{Type: EventBackendSwitch, From: e.name, To: next.name})
		}
	}
	if lastErr == nil {
		return ir.ChatResponse{}, &ir.ProviderError{Message: "no healthy backend available"}
	}
	return ir.ChatResponse{}, lastErr
}

// ExecuteStream dispatches req to candidates in order. Fallback is only
// attempted before the first content chunk has been yielded downstream;
// once content has flowed, a subsequent error is terminal.
func (r *Router) ExecuteStream(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
	order := r.candidateOrder(req)
	if len(order) == 0 {
		return nil, &ir.ProviderError{Message: "no healthy backend available"}
	}

	out := make(chan ir.StreamChunk)
	go func() {
		defer close(out)
		var lastErr error

		send := func(c ir.StreamChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for i, idx := range order {
			e := r.entries[idx]
			r.emit(Event{Type: EventBackendSelected, Backend: e.name})

			dispatchReq := reapplyCapabilities(req, e.backend.Metadata().Capabilities)
			start := time.Now()
			chunks, err := e.backend.ExecuteStream(ctx, dispatchReq)
			if err != nil {
				e.health.recordFailure()
				r.emit(Event{Type: EventBackendFailed, Backend: e.name, Err: err})
				lastErr = err
				if !r.cfg.FallbackOnError || !shouldFallback(err) {
					send(ir.StreamChunk{Type: ir.ChunkError, ErrorText: err.Error()})
					return
				}
				if i+1 < len(order) {
					r.emit(Event{Type: EventBackendSwitch, From: e.name, To: r.entries[order[i+1]].name})
				}
				continue
			}

			var sentContent bool
			fellBack := false
			for c := range chunks {
				if c.Type == ir.ChunkContent {
					sentContent = true
				}
				if c.Type == ir.ChunkError && !sentContent && r.cfg.FallbackOnError {
					e.health.recordFailure()
					r.emit(Event{Type: EventBackendFailed, Backend: e.name, Err: &ir.StreamError{Message: c.ErrorText}})
					lastErr = &ir.StreamError{Message: c.ErrorText}
					fellBack = true
					if i+1 < len(order) {
						r.emit(Event{Type: EventBackendSwitch, From: e.name, To: r.entries[order[i+1]].name})
					}
					break
				}
				if !send(c) {
					return
				}
				if c.Type == ir.ChunkDone {
					e.health.recordSuccess(time.Since(start))
					return
				}
				if c.Type == ir.ChunkError {
					return
				}
			}
			if !fellBack {
				return
			}
		}
		if lastErr != nil {
			send(ir.StreamChunk{Type: ir.ChunkError, ErrorText: lastErr.Error()})
		}
	}()

	return out, nil
}

// ListModels aggregates models from every backend the caller can see,
// tagging source as ModelSourceHybrid when backends disagree.
func (r *Router) ListModels(ctx context.Context, filter adapter.ListModelsFilter) (adapter.ListModelsResult, error) {
	var all []adapter.ModelInfo
	sources := map[adapter.ModelSource]bool{}
	for _, e := range r.entries {
		res, err := e.backend.ListModels(ctx, filter)
		if err != nil {
			continue
		}
		all = append(all, res.Models...)
		sources[res.Source] = true
	}
	source := adapter.ModelSourceStatic
	if len(sources) > 1 {
		source = adapter.ModelSourceHybrid
	} else {
		for s := range sources {
			source = s
		}
	}
	return adapter.ListModelsResult{Models: all, Source: source}, nil
}

// EstimateCost returns the minimum cost estimate across healthy backends.
func (r *Router) EstimateCost(req ir.ChatRequest) (float64, error) {
	var best float64
	var found bool
	for _, e := range r.entries {
		if !e.health.isHealthy(r.cfg.Threshold, r.cfg.Cooldown) {
			continue
		}
		cost, err := e.backend.EstimateCost(req)
		if err != nil {
			continue
		}
		if !found || cost < best {
			best, found = cost, true
		}
	}
	if !found {
		return 0, &ir.ProviderError{Message: "no healthy backend available"}
	}
	return best, nil
}

// HealthCheck reports healthy if at least one backend is reachable.
func (r *Router) HealthCheck(ctx context.Context) error {
	var lastErr error
	for _, e := range r.entries {
		if err := e.backend.HealthCheck(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = &ir.ProviderError{Message: "no backends configured"}
	}
	return lastErr
}

var _ adapter.Backend = (*Router)(nil)
