// Package storage persists the whitelist singleton and proposal records.
//
// Every governance operation runs inside a single Store transaction. A
// transaction either commits all of its writes or none of them, and no other
// transaction observes its intermediate state.
package storage

import (
	"context"
	"errors"

	"github.com/polisai/hookgate/pkg/domain"
)

var (
	// ErrReadOnly is returned when a View transaction attempts a write.
	ErrReadOnly = errors.New("storage: read-only transaction")
	// ErrConflict is returned when a concurrent writer committed first.
	ErrConflict = errors.New("storage: concurrent update conflict")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: store closed")
	// ErrLedgerTooLarge is returned when an encoded ledger exceeds the
	// backend's value size limit.
	ErrLedgerTooLarge = errors.New("storage: ledger exceeds maximum value size")
)

// Store runs governance transactions.
type Store interface {
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs fn and commits its writes if fn returns nil. fn may be
	// invoked more than once when the backend detects a conflicting commit,
	// so it must not have side effects outside tx.
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx is the record-level view of the store inside one transaction. Returned
// records are copies; changes take effect only through the Put and Create
// methods.
type Tx interface {
	// Whitelist returns the singleton or domain.ErrNotInitialized.
	Whitelist() (*domain.Whitelist, error)
	// CreateWhitelist stores the singleton or fails with domain.ErrAlreadyInitialized.
	CreateWhitelist(w *domain.Whitelist) error
	// PutWhitelist replaces an existing singleton.
	PutWhitelist(w *domain.Whitelist) error

	// Proposal returns the record for id or domain.ErrProposalNotFound.
	Proposal(id uint64) (*domain.HookProposal, error)
	// CreateProposal stores a new record or fails with domain.ErrDuplicateProposal.
	CreateProposal(p *domain.HookProposal) error
	// PutProposal replaces an existing record.
	PutProposal(p *domain.HookProposal) error

	// HasBallot reports whether voter already has a ballot on proposalID.
	HasBallot(proposalID uint64, voter domain.Key) (bool, error)
	// PutBallot records a ballot.
	PutBallot(b *domain.Ballot) error
	// DeleteBallots drops every ballot cast on proposalID.
	DeleteBallots(proposalID uint64) error
}
