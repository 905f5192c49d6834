// Package api exposes the governance engine as JSON over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/hookgate/internal/resilience"
	"github.com/polisai/hookgate/pkg/domain"
	"github.com/polisai/hookgate/pkg/engine"
	"github.com/polisai/hookgate/pkg/telemetry"
)

// Governance is the engine surface served over HTTP.
type Governance interface {
	Initialize(ctx context.Context, admin domain.Key) (*domain.Whitelist, error)
	Propose(ctx context.Context, req engine.ProposeRequest) (*domain.HookProposal, error)
	Vote(ctx context.Context, req engine.VoteRequest) (*domain.HookProposal, error)
	Finalize(ctx context.Context, proposalID uint64) (*engine.FinalizeResult, error)
	CheckMembership(ctx context.Context, hook domain.Key) (bool, error)
	RequireMembership(ctx context.Context, hook domain.Key) error
	Whitelist(ctx context.Context) (*domain.Whitelist, error)
	Proposal(ctx context.Context, id uint64) (*domain.HookProposal, error)
	Proposals(ctx context.Context) ([]*domain.HookProposal, error)
	ProposalState(p *domain.HookProposal) domain.ProposalState
	Params() engine.Params
}

var _ Governance = (*engine.Engine)(nil)

// Config holds dependencies for creating a Server. Limiter and Metrics are
// optional.
type Config struct {
	Engine  Governance
	Limiter *resilience.RateLimiter
	Metrics *telemetry.HTTPMetrics
	Logger  *slog.Logger
}

// Server routes API requests to the engine.
type Server struct {
	gov     Governance
	limiter *resilience.RateLimiter
	metrics *telemetry.HTTPMetrics
	logger  *slog.Logger
	handler http.Handler
}

// New builds the server and its route table.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		gov:     cfg.Engine,
		limiter: cfg.Limiter,
		metrics: cfg.Metrics,
		logger:  logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = otelhttp.NewHandler(requestID(mux), "hookgate.api")
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	s.handle(mux, "POST /v1/whitelist", "initialize", s.handleInitialize)
	s.handle(mux, "GET /v1/whitelist", "whitelist", s.handleWhitelist)
	s.handle(mux, "POST /v1/proposals", "propose", s.handlePropose)
	s.handle(mux, "GET /v1/proposals", "proposals", s.handleProposals)
	s.handle(mux, "GET /v1/proposals/{id}", "proposal", s.handleProposal)
	s.handle(mux, "POST /v1/proposals/{id}/votes", "vote", s.handleVote)
	s.handle(mux, "POST /v1/proposals/{id}/finalize", "finalize", s.handleFinalize)
	s.handle(mux, "GET /v1/hooks/{hookId}", "hook", s.handleHook)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// handle wraps fn with the per-route middleware chain.
func (s *Server) handle(mux *http.ServeMux, pattern, route string, fn http.HandlerFunc) {
	var h http.Handler = fn
	h = s.rateLimit(route, h)
	h = withIdentity(h)
	h = s.observe(route, h)
	mux.Handle(pattern, h)
}
