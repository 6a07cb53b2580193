// Package batch executes large write operations in chunks with durable
// checkpoints, so a crashed or cancelled operation resumes from its last
// completed chunk instead of replaying from the start.
package batch

import (
	"context"
	"errors"
	"time"
)

// Kind identifies the write operation a checkpoint belongs to.
type Kind string

const (
	KindUpsertMany Kind = "upsert-many"
	KindDeleteMany Kind = "delete-many"
)

var (
	// ErrNotFound is returned when no checkpoint exists for an operation id.
	ErrNotFound = errors.New("batch: operation state not found")
	// ErrLocked is returned when another executor holds the operation lock.
	ErrLocked = errors.New("batch: operation is locked")
)

// OperationState is the durable checkpoint for one batch operation. It is
// persisted before the next chunk starts, never after, so a replayed
// operation can only re-run chunks that were already applied at least once.
type OperationState struct {
	ID                 string    `json:"id"`
	Kind               Kind      `json:"kind"`
	Index              string    `json:"index"`
	TotalItems         int       `json:"total_items"`
	ChunkSize          int       `json:"chunk_size"`
	CheckpointEvery    int       `json:"checkpoint_every"`
	LastCompletedChunk int       `json:"last_completed_chunk"`
	StartedAt          time.Time `json:"started_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Chunks returns the total number of chunks the operation spans.
func (s OperationState) Chunks() int {
	if s.ChunkSize <= 0 || s.TotalItems <= 0 {
		return 0
	}
	return (s.TotalItems + s.ChunkSize - 1) / s.ChunkSize
}

// StateStore persists operation checkpoints and serializes executors per
// operation id.
type StateStore interface {
	// Load returns the checkpoint for an operation, or ErrNotFound.
	Load(ctx context.Context, id string) (OperationState, error)
	// Save writes the checkpoint, overwriting any previous one.
	Save(ctx context.Context, state OperationState) error
	// Delete removes the checkpoint once the operation completes.
	Delete(ctx context.Context, id string) error
	// Acquire takes the per-operation lock, returning a release func.
	// A held lock fails fast with ErrLocked; executors never queue.
	Acquire(ctx context.Context, id string) (release func(), err error)
}
