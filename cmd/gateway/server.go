package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/bridge"
	"github.com/corebridge/llmgateway/pkg/frontend/anthropic"
	"github.com/corebridge/llmgateway/pkg/frontend/gemini"
	"github.com/corebridge/llmgateway/pkg/frontend/openai"
	"github.com/corebridge/llmgateway/pkg/frontend/passthrough"
	"github.com/corebridge/llmgateway/pkg/middleware"
	"github.com/corebridge/llmgateway/pkg/modelcache"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverDeps bundles everything routes() needs to build the gateway's
// Bridges (one per frontend dialect, all sharing the Router as their
// Backend) and the ancillary endpoints.
type serverDeps struct {
	router   adapter.Backend
	chain    []middleware.Middleware
	cache    *modelcache.Store
	cacheTTL time.Duration
	metrics  *prometheus.Registry
	logger   *slog.Logger
}

// server hosts the gateway's HTTP surface: one route per frontend dialect,
// plus health, metrics, and model-listing.
type server struct {
	mux *chi.Mux

	openaiBridge      *bridge.Bridge
	anthropicBridge   *bridge.Bridge
	geminiBridge      *bridge.Bridge
	passthroughBridge *bridge.Bridge

	router   adapter.Backend
	cache    *modelcache.Store
	cacheTTL time.Duration
	logger   *slog.Logger
}

func newServer(deps serverDeps) *server {
	s := &server{
		openaiBridge:      bridge.New(openai.New(), deps.router, deps.chain...),
		anthropicBridge:   bridge.New(anthropic.New(), deps.router, deps.chain...),
		geminiBridge:      bridge.New(gemini.New(), deps.router, deps.chain...),
		passthroughBridge: bridge.New(passthrough.New(), deps.router, deps.chain...),
		router:            deps.router,
		cache:             deps.cache,
		cacheTTL:          deps.cacheTTL,
		logger:            deps.logger,
	}
	s.routes(deps.metrics)
	return s
}

func (s *server) routes(reg *prometheus.Registry) {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/v1/models", s.handleListModels)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Post("/v1/chat/completions", s.handleOpenAI)
	r.Post("/v1/messages", s.handleAnthropic)
	r.Post("/v1beta/models/{model}:generateContent", s.handleGemini)
	r.Post("/v1beta/models/{model}:streamGenerateContent", s.handleGeminiStream)
	r.Post("/v1/ir/chat", s.handlePassthrough)

	s.mux = r
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
