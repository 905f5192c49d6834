package engine

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/polisai/hookgate/pkg/domain"
	"github.com/polisai/hookgate/pkg/events"
	"github.com/polisai/hookgate/pkg/storage"
	"github.com/polisai/hookgate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ProposeRequest carries the caller supplied fields of a new proposal.
type ProposeRequest struct {
	ProposalID uint64
	HookID     domain.Key
	AuditHash  domain.Hash
	Proposer   domain.Key
}

// VoteRequest carries one vote. The weight is read from TokenAccount, which
// must belong to Voter and hold the weighting mint.
type VoteRequest struct {
	ProposalID   uint64
	Voter        domain.Key
	TokenAccount domain.Key
	VoteFor      bool
}

// FinalizeResult is the closed proposal and whether its hook was approved.
type FinalizeResult struct {
	Proposal *domain.HookProposal `json:"proposal"`
	Approved bool                 `json:"approved"`
}

// Initialize creates the whitelist singleton administered by admin.
func (e *Engine) Initialize(ctx context.Context, admin domain.Key) (_ *domain.Whitelist, err error) {
	ctx, _, done := e.observe(ctx, "initialize")
	defer func() { done(err) }()

	if admin.IsZero() {
		return nil, fmt.Errorf("%w: admin identity is required", domain.ErrInvalidArgument)
	}

	wl := &domain.Whitelist{
		Admin:         admin,
		Hooks:         []domain.Key{},
		Proposals:     []uint64{},
		VoteThreshold: e.params.VoteThreshold,
		MaxHooks:      e.params.MaxHooks,
		MaxProposals:  e.params.MaxProposals,
	}

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		return tx.CreateWhitelist(wl)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "whitelist initialized",
		"admin", admin.String(),
		"vote_threshold", wl.VoteThreshold,
		"max_hooks", wl.MaxHooks,
		"max_proposals", wl.MaxProposals,
	)
	return wl.Clone(), nil
}

// Propose opens a proposal to whitelist req.HookID and registers its id.
func (e *Engine) Propose(ctx context.Context, req ProposeRequest) (_ *domain.HookProposal, err error) {
	ctx, span, done := e.observe(ctx, "propose", telemetry.ProposalIDAttr(req.ProposalID))
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("governance.hook.id", req.HookID.String()))

	now := e.clock.Now()
	var created *domain.HookProposal

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		wl, err := tx.Whitelist()
		if err != nil {
			return err
		}

		switch _, err := tx.Proposal(req.ProposalID); {
		case err == nil:
			return fmt.Errorf("%w: %d", domain.ErrDuplicateProposal, req.ProposalID)
		case domain.KindOf(err) != domain.KindNotFound:
			return err
		}

		if len(wl.Proposals) >= wl.MaxProposals {
			return fmt.Errorf("%w: %d proposals registered", domain.ErrCapacityExceeded, len(wl.Proposals))
		}

		p := &domain.HookProposal{
			ID:        req.ProposalID,
			HookID:    req.HookID,
			AuditHash: req.AuditHash,
			Proposer:  req.Proposer,
			Active:    true,
			CreatedAt: now,
		}
		if err := tx.CreateProposal(p); err != nil {
			return err
		}

		wl.Proposals = append(wl.Proposals, req.ProposalID)
		if err := tx.PutWhitelist(wl); err != nil {
			return err
		}

		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "proposal created",
		"proposal_id", created.ID,
		"hook_id", created.HookID.String(),
		"proposer", created.Proposer.String(),
		"voting_ends_at", created.VotingEndsAt(e.params.VotingWindow),
	)
	return created.Clone(), nil
}

// Vote adds the voter's current balance to one side of an open proposal.
// The oracle is queried once, before any state is read.
func (e *Engine) Vote(ctx context.Context, req VoteRequest) (_ *domain.HookProposal, err error) {
	ctx, span, done := e.observe(ctx, "vote", telemetry.ProposalIDAttr(req.ProposalID))
	defer func() { done(err) }()
	span.SetAttributes(attribute.Bool("governance.vote.for", req.VoteFor))

	weight, err := e.oracle.BalanceOf(ctx, req.TokenAccount, req.Voter, e.params.WeightMint)
	if err != nil {
		if domain.KindOf(err) == domain.KindValidation {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidWeight, err)
		}
		return nil, fmt.Errorf("query balance: %w", err)
	}

	now := e.clock.Now()
	var updated *domain.HookProposal

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		p, err := tx.Proposal(req.ProposalID)
		if err != nil {
			return err
		}
		if !p.Active {
			return fmt.Errorf("%w: %d", domain.ErrProposalInactive, p.ID)
		}
		if !now.Before(p.VotingEndsAt(e.params.VotingWindow)) {
			return fmt.Errorf("%w: %d", domain.ErrVotingPeriodEnded, p.ID)
		}

		if e.params.SingleVotePerVoter {
			voted, err := tx.HasBallot(p.ID, req.Voter)
			if err != nil {
				return err
			}
			if voted {
				return fmt.Errorf("%w: %s", domain.ErrAlreadyVoted, req.Voter)
			}
		}

		tally := &p.VotesAgainst
		if req.VoteFor {
			tally = &p.VotesFor
		}
		sum, carry := bits.Add64(*tally, weight, 0)
		if carry != 0 {
			return fmt.Errorf("%w: proposal %d", domain.ErrTallyOverflow, p.ID)
		}
		*tally = sum

		if err := tx.PutProposal(p); err != nil {
			return err
		}
		if e.params.SingleVotePerVoter {
			err := tx.PutBallot(&domain.Ballot{
				ProposalID: p.ID,
				Voter:      req.Voter,
				Weight:     weight,
				VoteFor:    req.VoteFor,
				CastAt:     now,
			})
			if err != nil {
				return err
			}
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.RecordVoteWeight(ctx, req.VoteFor, weight)
	e.logger.InfoContext(ctx, "vote counted",
		"proposal_id", updated.ID,
		"voter", req.Voter.String(),
		"vote_for", req.VoteFor,
		"weight", weight,
	)
	return updated.Clone(), nil
}

// Finalize closes a proposal whose voting window has elapsed and, if it
// passed, appends its hook to the whitelist. An approval that does not fit
// in the whitelist fails without closing the proposal.
func (e *Engine) Finalize(ctx context.Context, proposalID uint64) (_ *FinalizeResult, err error) {
	ctx, span, done := e.observe(ctx, "finalize", telemetry.ProposalIDAttr(proposalID))
	defer func() { done(err) }()

	now := e.clock.Now()
	var (
		closed    *domain.HookProposal
		approved  bool
		threshold uint64
	)

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		wl, err := tx.Whitelist()
		if err != nil {
			return err
		}
		p, err := tx.Proposal(proposalID)
		if err != nil {
			return err
		}
		if !p.Active {
			return fmt.Errorf("%w: %d", domain.ErrProposalInactive, p.ID)
		}
		if now.Before(p.VotingEndsAt(e.params.VotingWindow)) {
			return fmt.Errorf("%w: %d", domain.ErrVotingPeriodActive, p.ID)
		}

		passed := p.VotesFor > p.VotesAgainst && p.VotesFor >= wl.VoteThreshold
		if passed {
			if len(wl.Hooks) >= wl.MaxHooks {
				return fmt.Errorf("%w: %d hooks approved", domain.ErrCapacityExceeded, len(wl.Hooks))
			}
			wl.Hooks = append(wl.Hooks, p.HookID)
			if err := tx.PutWhitelist(wl); err != nil {
				return err
			}
		}

		p.Active = false
		if err := tx.PutProposal(p); err != nil {
			return err
		}
		// Closed proposals refuse votes before the ballot check.
		if e.params.SingleVotePerVoter {
			if err := tx.DeleteBallots(p.ID); err != nil {
				return err
			}
		}

		closed, approved, threshold = p, passed, wl.VoteThreshold
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.RecordDecision(span, telemetry.Decision{
		ProposalID:   closed.ID,
		HookID:       closed.HookID.String(),
		VotesFor:     closed.VotesFor,
		VotesAgainst: closed.VotesAgainst,
		Threshold:    threshold,
		Approved:     approved,
	})
	e.logger.InfoContext(ctx, "proposal finalized",
		"proposal_id", closed.ID,
		"hook_id", closed.HookID.String(),
		"approved", approved,
		"votes_for", closed.VotesFor,
		"votes_against", closed.VotesAgainst,
	)

	if approved {
		telemetry.RecordApproval(ctx)
		e.publish(ctx, domain.HookApproved{
			HookID:       closed.HookID,
			ProposalID:   closed.ID,
			VotesFor:     closed.VotesFor,
			VotesAgainst: closed.VotesAgainst,
			ApprovedAt:   now,
		})
	}

	return &FinalizeResult{Proposal: closed.Clone(), Approved: approved}, nil
}

// publish hands a committed approval to the event sink. The whitelist change
// is already durable, so delivery failures are only logged.
func (e *Engine) publish(ctx context.Context, evt domain.HookApproved) {
	if e.events == nil {
		return
	}
	evt = events.Stamp(evt)
	if err := e.events.Publish(ctx, evt); err != nil {
		e.logger.WarnContext(ctx, "publish hook approved event failed",
			"event_id", evt.EventID,
			"proposal_id", evt.ProposalID,
			"error", err,
		)
	}
}
