// Command gateway is the HTTP entry point that hosts a Bridge/Router over
// the concrete backends: config load, backend construction, server wiring.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"

	"github.com/corebridge/llmgateway/internal/config"
	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/backend/anthropic"
	"github.com/corebridge/llmgateway/pkg/backend/gemini"
	"github.com/corebridge/llmgateway/pkg/backend/openai"
	"github.com/corebridge/llmgateway/pkg/middleware"
	"github.com/corebridge/llmgateway/pkg/modelcache"
	"github.com/corebridge/llmgateway/pkg/router"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	backends := buildBackends(cfg)
	if len(backends) == 0 {
		logger.Error("no backends configured")
		os.Exit(1)
	}

	rt := router.New(router.Config{
		Backends:        backends,
		Strategy:        strategyFromConfig(cfg.Router.Strategy),
		FallbackOnError: cfg.Router.FallbackOnError,
		Threshold:       cfg.Router.Threshold,
		Cooldown:        cfg.Router.Cooldown,
		HealthCheck: router.HealthCheckConfig{
			Enabled:  cfg.Router.HealthCheck.Enabled,
			Interval: cfg.Router.HealthCheck.Interval,
		},
		OnEvent: func(ev router.Event) {
			logger.Info("router event", "type", ev.Type, "backend", ev.Backend, "from", ev.From, "to", ev.To)
		},
	})
	defer rt.Stop()

	reg := prometheus.NewRegistry()
	chain := []middleware.Middleware{
		middleware.NewLogging(logger),
		middleware.NewMetrics(reg),
		middleware.NewRetry(middleware.DefaultRetryConfig()),
	}

	cache := modelcache.New()

	srv := newServer(serverDeps{
		router:   rt,
		chain:    chain,
		cache:    cache,
		cacheTTL: cfg.Cache.TTL,
		metrics:  reg,
		logger:   logger,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("gateway listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildBackends constructs one adapter.Backend per configured provider.
// Configured names are sorted so the router's priority/round-robin
// strategies see a deterministic registration order across runs.
func buildBackends(cfg *config.Config) []adapter.Backend {
	names := make([]string, 0, len(cfg.Backends))
	for name := range cfg.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	var backends []adapter.Backend
	for _, name := range names {
		b := cfg.Backends[name]
		switch name {
		case "openai":
			backends = append(backends, openai.New(openai.Config{APIKey: b.APIKey, BaseURL: b.BaseURL}))
		case "anthropic":
			backends = append(backends, anthropic.New(anthropic.Config{APIKey: b.APIKey, BaseURL: b.BaseURL}))
		case "gemini":
			backends = append(backends, gemini.New(gemini.Config{APIKey: b.APIKey, BaseURL: b.BaseURL}))
		default:
			slog.Warn("unknown backend in config, skipping", "name", name)
		}
	}
	return backends
}

func strategyFromConfig(s string) router.Strategy {
	switch s {
	case "round_robin":
		return router.StrategyRoundRobin
	case "random":
		return router.StrategyRandom
	case "least_latency":
		return router.StrategyLeastLatency
	case "complexity":
		return router.StrategyComplexity
	case "cost_optimized":
		return router.StrategyCostOptimized
	default:
		return router.StrategyPriority
	}
}
