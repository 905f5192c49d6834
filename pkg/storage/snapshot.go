package storage

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/polisai/hookgate/pkg/domain"
)

// snapshot is the full governance ledger of one deployment. The bounded
// whitelist collections keep it small enough to copy per transaction.
// Proposals and Ballots are keyed by ProposalAddress and BallotAddress.
type snapshot struct {
	Whitelist *domain.Whitelist
	Proposals map[string]*domain.HookProposal
	Ballots   map[string]*domain.Ballot
}

func newSnapshot() *snapshot {
	return &snapshot{
		Proposals: make(map[string]*domain.HookProposal),
		Ballots:   make(map[string]*domain.Ballot),
	}
}

// clone copies the maps and the whitelist. Proposal and ballot values are
// never mutated in place, so sharing them is safe.
func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		Whitelist: s.Whitelist.Clone(),
		Proposals: maps.Clone(s.Proposals),
		Ballots:   maps.Clone(s.Ballots),
	}
	if c.Proposals == nil {
		c.Proposals = make(map[string]*domain.HookProposal)
	}
	if c.Ballots == nil {
		c.Ballots = make(map[string]*domain.Ballot)
	}
	return c
}

// MarshalJSON encodes the ledger as one flat object keyed by record address,
// the singleton under WhitelistAddress.
func (s *snapshot) MarshalJSON() ([]byte, error) {
	records := make(map[string]any, len(s.Proposals)+len(s.Ballots)+1)
	if s.Whitelist != nil {
		records[WhitelistAddress] = s.Whitelist
	}
	for addr, p := range s.Proposals {
		records[addr] = p
	}
	for addr, b := range s.Ballots {
		records[addr] = b
	}
	return json.Marshal(records)
}

// UnmarshalJSON decodes the address-keyed layout written by MarshalJSON.
func (s *snapshot) UnmarshalJSON(data []byte) error {
	var records map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	decoded := newSnapshot()
	for addr, raw := range records {
		var err error
		switch {
		case addr == WhitelistAddress:
			decoded.Whitelist = new(domain.Whitelist)
			err = json.Unmarshal(raw, decoded.Whitelist)
		case strings.HasPrefix(addr, ballotPrefix):
			b := new(domain.Ballot)
			err = json.Unmarshal(raw, b)
			decoded.Ballots[addr] = b
		case strings.HasPrefix(addr, proposalPrefix):
			p := new(domain.HookProposal)
			err = json.Unmarshal(raw, p)
			decoded.Proposals[addr] = p
		default:
			return fmt.Errorf("unknown ledger address %q", addr)
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", addr, err)
		}
	}

	*s = *decoded
	return nil
}

// snapshotTx implements Tx over a snapshot. Writes land directly in state,
// which is a private working copy for update transactions.
type snapshotTx struct {
	state    *snapshot
	readOnly bool
	dirty    bool
}

var _ Tx = (*snapshotTx)(nil)

func (tx *snapshotTx) write() error {
	if tx.readOnly {
		return ErrReadOnly
	}
	tx.dirty = true
	return nil
}

func (tx *snapshotTx) Whitelist() (*domain.Whitelist, error) {
	if tx.state.Whitelist == nil {
		return nil, domain.ErrNotInitialized
	}
	return tx.state.Whitelist.Clone(), nil
}

func (tx *snapshotTx) CreateWhitelist(w *domain.Whitelist) error {
	if tx.state.Whitelist != nil {
		return domain.ErrAlreadyInitialized
	}
	if err := tx.write(); err != nil {
		return err
	}
	tx.state.Whitelist = w.Clone()
	return nil
}

func (tx *snapshotTx) PutWhitelist(w *domain.Whitelist) error {
	if tx.state.Whitelist == nil {
		return domain.ErrNotInitialized
	}
	if err := tx.write(); err != nil {
		return err
	}
	tx.state.Whitelist = w.Clone()
	return nil
}

func (tx *snapshotTx) Proposal(id uint64) (*domain.HookProposal, error) {
	p, ok := tx.state.Proposals[ProposalAddress(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrProposalNotFound, id)
	}
	return p.Clone(), nil
}

func (tx *snapshotTx) CreateProposal(p *domain.HookProposal) error {
	addr := ProposalAddress(p.ID)
	if _, ok := tx.state.Proposals[addr]; ok {
		return fmt.Errorf("%w: %d", domain.ErrDuplicateProposal, p.ID)
	}
	if err := tx.write(); err != nil {
		return err
	}
	tx.state.Proposals[addr] = p.Clone()
	return nil
}

func (tx *snapshotTx) PutProposal(p *domain.HookProposal) error {
	addr := ProposalAddress(p.ID)
	if _, ok := tx.state.Proposals[addr]; !ok {
		return fmt.Errorf("%w: %d", domain.ErrProposalNotFound, p.ID)
	}
	if err := tx.write(); err != nil {
		return err
	}
	tx.state.Proposals[addr] = p.Clone()
	return nil
}

func (tx *snapshotTx) HasBallot(proposalID uint64, voter domain.Key) (bool, error) {
	_, ok := tx.state.Ballots[BallotAddress(proposalID, voter)]
	return ok, nil
}

func (tx *snapshotTx) PutBallot(b *domain.Ballot) error {
	if err := tx.write(); err != nil {
		return err
	}
	c := *b
	tx.state.Ballots[BallotAddress(b.ProposalID, b.Voter)] = &c
	return nil
}

func (tx *snapshotTx) DeleteBallots(proposalID uint64) error {
	if err := tx.write(); err != nil {
		return err
	}
	prefix := ballotPrefixFor(proposalID)
	for addr := range tx.state.Ballots {
		if strings.HasPrefix(addr, prefix) {
			delete(tx.state.Ballots, addr)
		}
	}
	return nil
}
