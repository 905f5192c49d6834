package domain

import (
	"slices"
	"time"
)

// Defaults applied when a deployment does not configure its own values.
const (
	// DefaultVoteThreshold is one whole token of a 9-decimal weighting mint.
	DefaultVoteThreshold uint64 = 1_000_000_000
	// DefaultVotingWindow is seven days.
	DefaultVotingWindow = 7 * 24 * time.Hour
	// DefaultMaxHooks bounds the approved hook set.
	DefaultMaxHooks = 10
	// DefaultMaxProposals bounds the registered proposal id set.
	DefaultMaxProposals = 20
)

// Whitelist is the per-deployment singleton holding approved hooks and the
// governance parameters fixed at initialization.
type Whitelist struct {
	Admin         Key      `json:"admin"`
	Hooks         []Key    `json:"hooks"`
	Proposals     []uint64 `json:"proposals"`
	VoteThreshold uint64   `json:"vote_threshold"`
	MaxHooks      int      `json:"max_hooks"`
	MaxProposals  int      `json:"max_proposals"`
}

// HasHook reports whether hook is in the approved set.
func (w *Whitelist) HasHook(hook Key) bool {
	return slices.Contains(w.Hooks, hook)
}

// Clone returns a deep copy.
func (w *Whitelist) Clone() *Whitelist {
	if w == nil {
		return nil
	}
	c := *w
	c.Hooks = slices.Clone(w.Hooks)
	c.Proposals = slices.Clone(w.Proposals)
	return &c
}

// HookProposal is a time-boxed request to add HookID to the whitelist.
// Once Active is false the proposal is closed for good.
type HookProposal struct {
	ID           uint64    `json:"id"`
	HookID       Key       `json:"hook_id"`
	AuditHash    Hash      `json:"audit_hash"`
	VotesFor     uint64    `json:"votes_for"`
	VotesAgainst uint64    `json:"votes_against"`
	Proposer     Key       `json:"proposer"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clone returns a copy.
func (p *HookProposal) Clone() *HookProposal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// VotingEndsAt is the first instant at which votes are refused and
// finalization is allowed.
func (p *HookProposal) VotingEndsAt(window time.Duration) time.Time {
	return p.CreatedAt.Add(window)
}

// ProposalState is the observable lifecycle state of a proposal.
type ProposalState string

const (
	// StateOpen accepts votes.
	StateOpen ProposalState = "open"
	// StateExpired has an elapsed window and awaits finalization.
	StateExpired ProposalState = "expired"
	// StateClosed is terminal.
	StateClosed ProposalState = "closed"
)

// State derives the lifecycle state at now. Expiry is never stored.
func (p *HookProposal) State(now time.Time, window time.Duration) ProposalState {
	switch {
	case !p.Active:
		return StateClosed
	case now.Before(p.VotingEndsAt(window)):
		return StateOpen
	default:
		return StateExpired
	}
}

// Ballot records one voter's participation in a proposal. Ballots are only
// kept when single-vote enforcement is enabled.
type Ballot struct {
	ProposalID uint64    `json:"proposal_id"`
	Voter      Key       `json:"voter"`
	Weight     uint64    `json:"weight"`
	VoteFor    bool      `json:"vote_for"`
	CastAt     time.Time `json:"cast_at"`
}
