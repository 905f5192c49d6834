package domain

import (
	"context"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// BalanceOracle reports the weighting balance held in a token account.
//
// Implementations must verify that account belongs to expectedOwner and holds
// expectedMint, returning ErrInvalidTokenOwner or ErrInvalidTokenAccount
// otherwise. Any other error is treated as an unavailable oracle.
type BalanceOracle interface {
	BalanceOf(ctx context.Context, account, expectedOwner, expectedMint Key) (uint64, error)
}

// EventSink receives approval notifications after they are committed.
type EventSink interface {
	Publish(ctx context.Context, event HookApproved) error
}
