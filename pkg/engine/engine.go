package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polisai/hookgate/pkg/clock"
	"github.com/polisai/hookgate/pkg/domain"
	"github.com/polisai/hookgate/pkg/storage"
	"github.com/polisai/hookgate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Params are the governance parameters of a deployment. Zero values fall back
// to the domain defaults.
type Params struct {
	// VoteThreshold is the minimum votes-for weight. It is copied into the
	// whitelist at Initialize and never changes afterwards.
	VoteThreshold uint64
	// VotingWindow is how long a proposal accepts votes.
	VotingWindow time.Duration
	MaxHooks     int
	MaxProposals int
	// WeightMint is the token whose balances weight votes.
	WeightMint domain.Key
	// SingleVotePerVoter rejects a second vote by the same voter on a proposal.
	SingleVotePerVoter bool
}

// DefaultParams returns the stock governance parameters.
func DefaultParams() Params {
	return Params{
		VoteThreshold: domain.DefaultVoteThreshold,
		VotingWindow:  domain.DefaultVotingWindow,
		MaxHooks:      domain.DefaultMaxHooks,
		MaxProposals:  domain.DefaultMaxProposals,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.VoteThreshold == 0 {
		p.VoteThreshold = d.VoteThreshold
	}
	if p.VotingWindow == 0 {
		p.VotingWindow = d.VotingWindow
	}
	if p.MaxHooks == 0 {
		p.MaxHooks = d.MaxHooks
	}
	if p.MaxProposals == 0 {
		p.MaxProposals = d.MaxProposals
	}
	return p
}

func (p Params) validate() error {
	if p.VotingWindow < 0 {
		return fmt.Errorf("%w: voting window must not be negative", domain.ErrInvalidArgument)
	}
	if p.MaxHooks < 0 || p.MaxProposals < 0 {
		return fmt.Errorf("%w: capacities must not be negative", domain.ErrInvalidArgument)
	}
	return nil
}

// Config holds dependencies for creating an Engine.
type Config struct {
	Store  storage.Store
	Oracle domain.BalanceOracle
	Clock  domain.Clock
	Events domain.EventSink
	Logger *slog.Logger
	Params Params
}

// Engine runs governance operations against a Store. Each operation is one
// store transaction.
type Engine struct {
	store  storage.Store
	oracle domain.BalanceOracle
	clock  domain.Clock
	events domain.EventSink
	logger *slog.Logger
	params Params
}

// New creates an engine. Store and Oracle are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("engine: balance oracle is required")
	}

	params := cfg.Params.withDefaults()
	if err := params.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}

	return &Engine{
		store:  cfg.Store,
		oracle: cfg.Oracle,
		clock:  clk,
		events: cfg.Events,
		logger: logger,
		params: params,
	}, nil
}

// Params returns the effective parameters.
func (e *Engine) Params() Params {
	return e.params
}

// observe starts the span for op and returns a function that records the
// outcome. Domain errors count as rejections, anything else as a failure.
func (e *Engine) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func(error)) {
	ctx, span := telemetry.Tracer().Start(ctx, "governance."+op, trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, span, func(err error) {
		outcome := telemetry.OutcomeOK
		code := ""
		if err != nil {
			code = domain.CodeOf(err)
			if code != "" {
				outcome = telemetry.OutcomeRejected
				e.logger.DebugContext(ctx, "governance operation rejected", "operation", op, "code", code, "error", err)
			} else {
				outcome = telemetry.OutcomeError
				e.logger.ErrorContext(ctx, "governance operation failed", "operation", op, "error", err)
			}
			telemetry.RecordError(span, err, outcome == telemetry.OutcomeRejected)
		}

		telemetry.RecordOperation(ctx, telemetry.OperationMetrics{
			Operation: op,
			Outcome:   outcome,
			Code:      code,
			Duration:  time.Since(start),
		})
		span.End()
	}
}
