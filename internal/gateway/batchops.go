package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/searchgate/searchgate/internal/batch"
	"github.com/searchgate/searchgate/internal/domain"
)

// UpsertMany writes documents through the primary provider. Batches at or
// above the configured threshold run on the durable executor under the given
// operation id (generated when empty), so an interrupted batch resumes from
// its last checkpoint instead of replaying. Smaller batches are written
// directly, split to the provider's batch limit.
func (g *Gateway) UpsertMany(ctx context.Context, index string, docs []domain.Document, operationID string) (batch.Report, error) {
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return batch.Report{}, fmt.Errorf("document %d: %w", i, err)
		}
	}
	caps, err := g.caps.Capabilities(g.cfg.Primary)
	if err != nil {
		return batch.Report{}, err
	}

	apply := func(ctx context.Context, start, end int) error {
		return g.applyInProviderBatches(caps.MaxBatchSize, start, end, func(s, e int) error {
			return g.primary().UpsertMany(ctx, index, docs[s:e])
		})
	}

	if g.executor == nil || len(docs) < g.cfg.batchThreshold() {
		return g.runDirect(ctx, len(docs), apply)
	}

	if operationID == "" {
		operationID = g.newID()
	}
	op := batch.Operation{ID: operationID, Kind: batch.KindUpsertMany, Index: index, TotalItems: len(docs)}
	return g.runDurable(ctx, op, apply)
}

// DeleteMany removes documents by id with the same durable semantics as
// UpsertMany. Absent ids are no-ops.
func (g *Gateway) DeleteMany(ctx context.Context, index string, ids []string, operationID string) (batch.Report, error) {
	for i, id := range ids {
		if id == "" {
			return batch.Report{}, fmt.Errorf("id %d is empty: %w", i, domain.ErrInvalidQuery)
		}
	}
	caps, err := g.caps.Capabilities(g.cfg.Primary)
	if err != nil {
		return batch.Report{}, err
	}

	apply := func(ctx context.Context, start, end int) error {
		return g.applyInProviderBatches(caps.MaxBatchSize, start, end, func(s, e int) error {
			return g.primary().DeleteMany(ctx, index, ids[s:e])
		})
	}

	if g.executor == nil || len(ids) < g.cfg.batchThreshold() {
		return g.runDirect(ctx, len(ids), apply)
	}

	if operationID == "" {
		operationID = g.newID()
	}
	op := batch.Operation{ID: operationID, Kind: batch.KindDeleteMany, Index: index, TotalItems: len(ids)}
	return g.runDurable(ctx, op, apply)
}

// runDurable delegates to the executor and maps its lock contention onto the
// canonical taxonomy: a concurrently running operation is an internal error,
// never a silent queue.
func (g *Gateway) runDurable(ctx context.Context, op batch.Operation, apply batch.ChunkFunc) (batch.Report, error) {
	report, err := g.executor.Run(ctx, op, apply)
	if err != nil {
		if errors.Is(err, batch.ErrLocked) {
			return report, fmt.Errorf("operation %q is already running: %w", op.ID, domain.ErrInternal)
		}
		return report, err
	}
	return report, nil
}

// runDirect applies the whole item range in one pass with no checkpointing.
func (g *Gateway) runDirect(ctx context.Context, total int, apply batch.ChunkFunc) (batch.Report, error) {
	if total == 0 {
		return batch.Report{}, nil
	}
	if err := apply(ctx, 0, total); err != nil {
		return batch.Report{}, err
	}
	return batch.Report{Processed: total, Chunks: 1}, nil
}

// applyInProviderBatches splits [start, end) into provider-sized calls.
// A zero max means the provider takes the whole range at once.
func (g *Gateway) applyInProviderBatches(maxBatch, start, end int, call func(s, e int) error) error {
	size := end - start
	if maxBatch > 0 && maxBatch < size {
		size = maxBatch
	}
	for s := start; s < end; s += size {
		e := min(s+size, end)
		if err := call(s, e); err != nil {
			return err
		}
	}
	return nil
}
