// Package provider defines the adapter contract between the gateway core and
// backend search engines. One adapter implementation exists per backend; the
// core only depends on this interface and on the canonical error taxonomy.
package provider

import (
	"context"

	"github.com/searchgate/searchgate/internal/domain"
)

// Stream is a lazy, finite sequence of hits. Next returns io.EOF when the
// sequence is exhausted. A stream is restartable only by re-issuing the
// originating call.
type Stream interface {
	Next(ctx context.Context) (domain.Hit, error)
}

// Adapter translates canonical operations into backend calls and maps backend
// errors onto the canonical taxonomy. An adapter must return an
// unsupported(feature) error rather than attempt a best-effort, silently
// wrong translation when a canonical feature has no backend equivalent; the
// degradation engine depends on that contract.
type Adapter interface {
	// ID returns the configured provider id.
	ID() string

	Search(ctx context.Context, index string, q domain.Query) (domain.ResultSet, error)
	StreamSearch(ctx context.Context, index string, q domain.Query) (Stream, error)

	Upsert(ctx context.Context, index string, doc domain.Document) error
	UpsertMany(ctx context.Context, index string, docs []domain.Document) error
	Delete(ctx context.Context, index, id string) error
	DeleteMany(ctx context.Context, index string, ids []string) error
	// Get returns (nil, nil) when the document does not exist.
	Get(ctx context.Context, index, id string) (*domain.Document, error)

	CreateIndex(ctx context.Context, name string, schema *domain.Schema) error
	DeleteIndex(ctx context.Context, name string) error
	ListIndexes(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, index string) (domain.Schema, error)
	UpdateSchema(ctx context.Context, index string, schema domain.Schema) error

	HealthCheck(ctx context.Context) error
}
