package engine

import (
	"context"
	"fmt"

	"github.com/polisai/hookgate/pkg/domain"
	"github.com/polisai/hookgate/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
)

// CheckMembership reports whether hook is whitelisted. It never mutates state.
func (e *Engine) CheckMembership(ctx context.Context, hook domain.Key) (_ bool, err error) {
	ctx, span, done := e.observe(ctx, "check_membership")
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("governance.hook.id", hook.String()))

	var member bool
	err = e.store.View(ctx, func(tx storage.Tx) error {
		wl, err := tx.Whitelist()
		if err != nil {
			return err
		}
		member = wl.HasHook(hook)
		return nil
	})
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.Bool("governance.hook.whitelisted", member))
	return member, nil
}

// RequireMembership fails with domain.ErrHookNotWhitelisted unless hook is
// whitelisted.
func (e *Engine) RequireMembership(ctx context.Context, hook domain.Key) error {
	member, err := e.CheckMembership(ctx, hook)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: %s", domain.ErrHookNotWhitelisted, hook)
	}
	return nil
}

// Whitelist returns a snapshot of the singleton.
func (e *Engine) Whitelist(ctx context.Context) (*domain.Whitelist, error) {
	var wl *domain.Whitelist
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		wl, err = tx.Whitelist()
		return err
	})
	if err != nil {
		return nil, err
	}
	return wl, nil
}

// Proposal returns a snapshot of one proposal.
func (e *Engine) Proposal(ctx context.Context, id uint64) (*domain.HookProposal, error) {
	var p *domain.HookProposal
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		p, err = tx.Proposal(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Proposals returns every registered proposal in registration order.
func (e *Engine) Proposals(ctx context.Context) ([]*domain.HookProposal, error) {
	var out []*domain.HookProposal
	err := e.store.View(ctx, func(tx storage.Tx) error {
		wl, err := tx.Whitelist()
		if err != nil {
			return err
		}
		out = make([]*domain.HookProposal, 0, len(wl.Proposals))
		for _, id := range wl.Proposals {
			p, err := tx.Proposal(id)
			if err != nil {
				return fmt.Errorf("registered proposal %d: %w", id, err)
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProposalState is p's lifecycle state at the engine clock's current time.
func (e *Engine) ProposalState(p *domain.HookProposal) domain.ProposalState {
	return p.State(e.clock.Now(), e.params.VotingWindow)
}
