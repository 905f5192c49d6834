package oracle

import (
	"context"
	"log/slog"

	"github.com/polisai/hookgate/internal/resilience"
	"github.com/polisai/hookgate/pkg/domain"
)

// Guarded wraps an oracle with a circuit breaker. Binding rejections are
// answers, not outages, so only infrastructure errors count as failures.
type Guarded struct {
	next    domain.BalanceOracle
	breaker *resilience.CircuitBreaker
}

var _ domain.BalanceOracle = (*Guarded)(nil)

// NewGuarded wraps next with a breaker built from config. State changes are
// logged at warn.
func NewGuarded(next domain.BalanceOracle, config resilience.CircuitBreakerConfig, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := resilience.NewCircuitBreaker(config)
	breaker.OnStateChange(func(from, to resilience.CircuitBreakerState) {
		logger.Warn("Balance oracle circuit changed state", "from", from, "to", to)
	})
	return &Guarded{next: next, breaker: breaker}
}

// State reports the breaker state.
func (g *Guarded) State() resilience.CircuitBreakerState {
	return g.breaker.State()
}

// BalanceOf forwards to the wrapped oracle unless the circuit is open.
func (g *Guarded) BalanceOf(ctx context.Context, account, expectedOwner, expectedMint domain.Key) (uint64, error) {
	var (
		amount   uint64
		rejected error
	)
	err := g.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		amount, err = g.next.BalanceOf(ctx, account, expectedOwner, expectedMint)
		if domain.KindOf(err) == domain.KindValidation {
			rejected = err
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	if rejected != nil {
		return 0, rejected
	}
	return amount, nil
}
