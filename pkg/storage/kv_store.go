package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/polisai/hookgate/internal/resilience"
)

// DefaultBucket is the JetStream key-value bucket used when none is configured.
const DefaultBucket = "HOOKGATE"

// ledgerKey holds the whole governance ledger. JetStream KV has no multi-key
// commit, so a single revisioned entry is the unit of atomicity.
const ledgerKey = "ledger"

// DefaultMaxLedgerSize matches the NATS server's default max_payload.
const DefaultMaxLedgerSize = 1 << 20

// KVStore is a Store backed by a NATS JetStream key-value bucket. Commits are
// compare-and-set on the entry revision; conflicting transactions re-run
// against the fresh state.
type KVStore struct {
	kv      jetstream.KeyValue
	retry   *resilience.RetryPolicy
	logger  *slog.Logger
	maxSize int
}

var _ Store = (*KVStore)(nil)

// KVStoreOption configures a KVStore.
type KVStoreOption func(*KVStore)

// WithConflictRetry sets the retry policy for revision conflicts.
func WithConflictRetry(cfg resilience.RetryConfig) KVStoreOption {
	return func(s *KVStore) {
		s.retry = resilience.NewRetryPolicy(cfg)
	}
}

// WithMaxLedgerSize caps the encoded ledger. Commits above it fail with
// ErrLedgerTooLarge instead of being rejected by the server.
func WithMaxLedgerSize(n int) KVStoreOption {
	return func(s *KVStore) {
		s.maxSize = n
	}
}

// WithKVLogger sets the logger.
func WithKVLogger(logger *slog.Logger) KVStoreOption {
	return func(s *KVStore) {
		s.logger = logger
	}
}

// NewKVStore opens (creating if needed) bucket on js.
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket string, opts ...KVStoreOption) (*KVStore, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context required")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "hook whitelist governance ledger",
		History:     8,
	})
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}

	return NewKVStoreFromBucket(kv, opts...), nil
}

// NewKVStoreFromBucket wraps an already opened bucket.
func NewKVStoreFromBucket(kv jetstream.KeyValue, opts ...KVStoreOption) *KVStore {
	s := &KVStore{
		kv:      kv,
		retry:   resilience.NewRetryPolicy(resilience.DefaultRetryConfig()),
		logger:  slog.Default(),
		maxSize: DefaultMaxLedgerSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View runs fn against the latest committed ledger.
func (s *KVStore) View(ctx context.Context, fn func(Tx) error) error {
	state, _, err := s.load(ctx)
	if err != nil {
		return err
	}
	return fn(&snapshotTx{state: state, readOnly: true})
}

// Update runs fn and commits with a revision check, re-running fn on conflict.
func (s *KVStore) Update(ctx context.Context, fn func(Tx) error) error {
	attempt := 0
	return s.retry.Do(ctx, isConflict, func() error {
		attempt++
		if attempt > 1 {
			s.logger.Debug("Retrying ledger transaction after conflict", "attempt", attempt)
		}

		state, revision, err := s.load(ctx)
		if err != nil {
			return err
		}

		tx := &snapshotTx{state: state}
		if err := fn(tx); err != nil {
			return err
		}
		if !tx.dirty {
			return nil
		}
		return s.commit(ctx, state, revision)
	})
}

// Close is a no-op; the NATS connection is owned by the caller.
func (s *KVStore) Close() error {
	return nil
}

func (s *KVStore) load(ctx context.Context) (*snapshot, uint64, error) {
	entry, err := s.kv.Get(ctx, ledgerKey)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return newSnapshot(), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read ledger: %w", err)
	}

	state := newSnapshot()
	if err := json.Unmarshal(entry.Value(), state); err != nil {
		return nil, 0, fmt.Errorf("decode ledger at revision %d: %w", entry.Revision(), err)
	}
	return state.clone(), entry.Revision(), nil
}

func (s *KVStore) commit(ctx context.Context, state *snapshot, revision uint64) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if s.maxSize > 0 && len(data) > s.maxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrLedgerTooLarge, len(data), s.maxSize)
	}

	if revision == 0 {
		_, err = s.kv.Create(ctx, ledgerKey, data)
	} else {
		_, err = s.kv.Update(ctx, ledgerKey, data, revision)
	}
	if err == nil {
		return nil
	}
	if isRevisionMismatch(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return fmt.Errorf("write ledger: %w", err)
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func isRevisionMismatch(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
