package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store. Update transactions
// are serialized and work on a private copy that replaces the live state only
// when the transaction succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	state  *snapshot
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty, uninitialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newSnapshot()}
}

// View runs fn against the current state.
func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return fn(&snapshotTx{state: s.state, readOnly: true})
}

// Update runs fn on a working copy and swaps it in on success.
func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx := &snapshotTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.dirty {
		s.state = tx.state
	}
	return nil
}

// Close releases the store. Later transactions fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
