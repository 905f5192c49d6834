package storage

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/polisai/hookgate/pkg/domain"
)

// WhitelistAddress is the fixed, well-known address of the singleton.
const WhitelistAddress = "whitelist"

const (
	proposalPrefix = "proposal/"
	ballotPrefix   = "ballot/"
)

// ProposalAddress derives the deterministic address of a proposal record
// from its id (little-endian encoded).
func ProposalAddress(id uint64) string {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	return proposalPrefix + hex.EncodeToString(buf[:])
}

// BallotAddress derives the address of a voter's ballot on a proposal.
func BallotAddress(proposalID uint64, voter domain.Key) string {
	return ballotPrefixFor(proposalID) + voter.String()
}

// ballotPrefixFor is the address prefix shared by every ballot on proposalID.
func ballotPrefixFor(proposalID uint64) string {
	return ballotPrefix + ProposalAddress(proposalID) + "/"
}
