// Package redis persists batch operation checkpoints in Redis, so chunked
// writes survive process restarts and resume on any gateway instance.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/searchgate/searchgate/internal/batch"
)

// Compile-time check: Store implements batch.StateStore.
var _ batch.StateStore = (*Store)(nil)

// DefaultLockTTL bounds how long a crashed executor can hold an operation
// lock before another instance may take over.
const DefaultLockTTL = 30 * time.Second

// Config holds connection parameters for a Redis state store.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	LockTTL   time.Duration
}

// Store implements batch.StateStore via rueidis.
type Store struct {
	client  rueidis.Client
	prefix  string
	lockTTL time.Duration
}

// NewStore creates a Redis state store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return newStore(client, cfg), nil
}

// NewStoreForTest wraps an existing client, typically a mock.
func NewStoreForTest(client rueidis.Client, cfg Config) *Store {
	return newStore(client, cfg)
}

func newStore(client rueidis.Client, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "searchgate:batch:"
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Store{client: client, prefix: prefix, lockTTL: ttl}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for state store: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Load retrieves the checkpoint for an operation.
func (s *Store) Load(ctx context.Context, id string) (batch.OperationState, error) {
	cmd := s.client.B().Get().Key(s.stateKey(id)).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return batch.OperationState{}, batch.ErrNotFound
		}
		return batch.OperationState{}, fmt.Errorf("load state: %w", err)
	}
	var state batch.OperationState
	if err := json.Unmarshal(data, &state); err != nil {
		return batch.OperationState{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

// Save writes the checkpoint, overwriting any previous one.
func (s *Store) Save(ctx context.Context, state batch.OperationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	cmd := s.client.B().Set().Key(s.stateKey(state.ID)).Value(string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Delete removes the checkpoint once the operation completes.
func (s *Store) Delete(ctx context.Context, id string) error {
	cmd := s.client.B().Del().Key(s.stateKey(id)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Acquire takes the per-operation lock with SET NX and a TTL, so a crashed
// holder cannot wedge the operation forever. A held lock fails fast with
// batch.ErrLocked.
func (s *Store) Acquire(ctx context.Context, id string) (func(), error) {
	key := s.lockKey(id)
	cmd := s.client.B().Set().Key(key).Value("1").Nx().Ex(s.lockTTL).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, batch.ErrLocked
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	release := func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		relCmd := s.client.B().Del().Key(key).Build()
		_ = s.client.Do(relCtx, relCmd).Error()
	}
	return release, nil
}

func (s *Store) stateKey(id string) string { return s.prefix + "op:" + id }
func (s *Store) lockKey(id string) string  { return s.prefix + "lock:" + id }
