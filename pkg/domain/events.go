package domain

import "time"

// HookApproved is emitted once a finalized proposal adds its hook to the
// whitelist.
type HookApproved struct {
	EventID      string    `json:"event_id"`
	HookID       Key       `json:"hook_id"`
	ProposalID   uint64    `json:"proposal_id"`
	VotesFor     uint64    `json:"votes_for"`
	VotesAgainst uint64    `json:"votes_against"`
	ApprovedAt   time.Time `json:"approved_at"`
}
