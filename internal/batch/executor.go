package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/searchgate/searchgate/internal/domain"
	"github.com/searchgate/searchgate/internal/metrics"
)

// Default executor tuning. Overridable per executor through options.
const (
	DefaultChunkSize       = 100
	DefaultCheckpointEvery = 1
	DefaultMaxRetries      = 3
	DefaultRetryBase       = 100 * time.Millisecond
)

// ErrStateMismatch is returned when a resumed operation's parameters do not
// match its persisted checkpoint.
var ErrStateMismatch = errors.New("batch: operation does not match checkpoint")

// Operation identifies one durable batch write.
type Operation struct {
	ID         string
	Kind       Kind
	Index      string
	TotalItems int
}

// ChunkFunc applies one chunk of the operation, covering item indexes
// [start, end). It must be idempotent: a chunk completed just before a crash
// is replayed on resume when the checkpoint had not yet been written.
type ChunkFunc func(ctx context.Context, start, end int) error

// ChunkError records one chunk that failed after retries were exhausted.
type ChunkError struct {
	Chunk int
	Start int
	End   int
	Err   error
}

func (e ChunkError) Error() string {
	return fmt.Sprintf("chunk %d [%d:%d): %v", e.Chunk, e.Start, e.End, e.Err)
}

func (e ChunkError) Unwrap() error { return e.Err }

// Report summarizes one executor run.
type Report struct {
	OperationID string
	Chunks      int
	// Processed counts items in chunks applied during this run.
	Processed int
	// Skipped counts items covered by a prior checkpoint and not replayed.
	Skipped int
	// Failed lists chunks that exhausted their retries. The operation still
	// advances past them; callers decide whether to replay under a new id.
	Failed  []ChunkError
	Resumed bool
}

// Executor runs chunked batch operations against a state store.
type Executor struct {
	store           StateStore
	chunkSize       int
	checkpointEvery int
	maxRetries      int
	retryBase       time.Duration
	logger          *zap.Logger
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithChunkSize sets how many items each chunk covers.
func WithChunkSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithCheckpointEvery sets how many completed chunks elapse between saves.
func WithCheckpointEvery(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.checkpointEvery = n
		}
	}
}

// WithMaxRetries bounds per-chunk retries on transient failures.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithRetryBase sets the initial retry backoff; it doubles per attempt.
func WithRetryBase(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.retryBase = d
		}
	}
}

// WithExecutorLogger attaches a logger.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor over a state store.
func NewExecutor(store StateStore, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:           store,
		chunkSize:       DefaultChunkSize,
		checkpointEvery: DefaultCheckpointEvery,
		maxRetries:      DefaultMaxRetries,
		retryBase:       DefaultRetryBase,
		logger:          zap.NewNop(),
		now:             time.Now,
		sleep:           sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes the operation chunk by chunk, checkpointing progress before
// each subsequent chunk starts. Resuming an id with a checkpoint skips every
// completed chunk. Transient chunk failures are retried with exponential
// backoff; a chunk that exhausts its retries is reported failed and the
// operation moves on. Cancellation persists the checkpoint and returns the
// context error; the operation resumes later under the same id.
func (e *Executor) Run(ctx context.Context, op Operation, apply ChunkFunc) (Report, error) {
	report := Report{OperationID: op.ID}
	if op.TotalItems <= 0 {
		return report, nil
	}

	release, err := e.store.Acquire(ctx, op.ID)
	if err != nil {
		return report, fmt.Errorf("acquire operation %q: %w", op.ID, err)
	}
	defer release()

	state, err := e.loadOrInit(ctx, op, &report)
	if err != nil {
		return report, err
	}
	report.Chunks = state.Chunks()
	report.Skipped = e.skippedItems(state)

	for chunk := state.LastCompletedChunk + 1; chunk < state.Chunks(); chunk++ {
		if err := ctx.Err(); err != nil {
			e.checkpoint(state)
			return report, fmt.Errorf("run operation %q: %w", op.ID, err)
		}

		start := chunk * state.ChunkSize
		end := min(start+state.ChunkSize, state.TotalItems)

		if err := e.applyWithRetry(ctx, op, chunk, start, end, apply); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				e.checkpoint(state)
				return report, fmt.Errorf("run operation %q: %w", op.ID, ctxErr)
			}
			metrics.BatchChunksTotal.WithLabelValues(string(op.Kind), "failure").Inc()
			report.Failed = append(report.Failed, ChunkError{Chunk: chunk, Start: start, End: end, Err: err})
			e.logger.Warn("batch chunk failed",
				zap.String("operation", op.ID),
				zap.Int("chunk", chunk),
				zap.Error(err),
			)
		} else {
			metrics.BatchChunksTotal.WithLabelValues(string(op.Kind), "success").Inc()
			report.Processed += end - start
		}

		state.LastCompletedChunk = chunk
		state.UpdatedAt = e.now()
		if (chunk+1)%state.CheckpointEvery == 0 && chunk != state.Chunks()-1 {
			if err := e.store.Save(ctx, state); err != nil {
				return report, fmt.Errorf("checkpoint operation %q: %w", op.ID, err)
			}
		}
	}

	if err := e.store.Delete(ctx, op.ID); err != nil {
		return report, fmt.Errorf("clear operation %q: %w", op.ID, err)
	}
	return report, nil
}

// loadOrInit resumes from an existing checkpoint or seeds a fresh one.
func (e *Executor) loadOrInit(ctx context.Context, op Operation, report *Report) (OperationState, error) {
	state, err := e.store.Load(ctx, op.ID)
	switch {
	case err == nil:
		if state.Kind != op.Kind || state.Index != op.Index || state.TotalItems != op.TotalItems {
			return OperationState{}, fmt.Errorf(
				"resume operation %q: kind=%s index=%s total=%d: %w",
				op.ID, state.Kind, state.Index, state.TotalItems, ErrStateMismatch,
			)
		}
		report.Resumed = true
		e.logger.Info("resuming batch operation",
			zap.String("operation", op.ID),
			zap.Int("last_completed_chunk", state.LastCompletedChunk),
		)
		return state, nil
	case errors.Is(err, ErrNotFound):
		now := e.now()
		return OperationState{
			ID:                 op.ID,
			Kind:               op.Kind,
			Index:              op.Index,
			TotalItems:         op.TotalItems,
			ChunkSize:          e.chunkSize,
			CheckpointEvery:    e.checkpointEvery,
			LastCompletedChunk: -1,
			StartedAt:          now,
			UpdatedAt:          now,
		}, nil
	default:
		return OperationState{}, fmt.Errorf("load operation %q: %w", op.ID, err)
	}
}

// applyWithRetry runs one chunk, retrying transient failures with doubling
// backoff. Non-transient errors fail the chunk immediately.
func (e *Executor) applyWithRetry(ctx context.Context, op Operation, chunk, start, end int, apply ChunkFunc) error {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.retryBase << (attempt - 1)
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}
			e.logger.Debug("retrying batch chunk",
				zap.String("operation", op.ID),
				zap.Int("chunk", chunk),
				zap.Int("attempt", attempt),
			)
		}
		lastErr = apply(ctx, start, end)
		if lastErr == nil {
			return nil
		}
		if !domain.IsFailover(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// checkpoint persists state on the way out of a cancelled run. The original
// context is already done, so the save runs detached with a short deadline.
func (e *Executor) checkpoint(state OperationState) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state.UpdatedAt = e.now()
	if err := e.store.Save(saveCtx, state); err != nil {
		e.logger.Error("checkpoint save failed",
			zap.String("operation", state.ID),
			zap.Error(err),
		)
	}
}

// skippedItems counts the items already covered by the checkpoint.
func (e *Executor) skippedItems(state OperationState) int {
	if state.LastCompletedChunk < 0 {
		return 0
	}
	covered := (state.LastCompletedChunk + 1) * state.ChunkSize
	return min(covered, state.TotalItems)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
