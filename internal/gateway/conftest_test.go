package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/searchgate/searchgate/internal/domain"
	"github.com/searchgate/searchgate/internal/provider"
	"github.com/searchgate/searchgate/internal/registry"
)

// fakeAdapter is a scriptable provider adapter. Unset hooks behave as
// cheap no-ops so each test wires only what it exercises.
type fakeAdapter struct {
	id string

	mu          sync.Mutex
	searchCalls []domain.Query

	searchFn     func(ctx context.Context, index string, q domain.Query) (domain.ResultSet, error)
	streamFn     func(ctx context.Context, index string, q domain.Query) (provider.Stream, error)
	upsertManyFn func(ctx context.Context, index string, docs []domain.Document) error
	deleteManyFn func(ctx context.Context, index string, ids []string) error
	healthFn     func(ctx context.Context) error
}

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) Search(ctx context.Context, index string, q domain.Query) (domain.ResultSet, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, q.Clone())
	f.mu.Unlock()
	if f.searchFn != nil {
		return f.searchFn(ctx, index, q)
	}
	return domain.ResultSet{}, nil
}

func (f *fakeAdapter) searched() []domain.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Query(nil), f.searchCalls...)
}

func (f *fakeAdapter) StreamSearch(ctx context.Context, index string, q domain.Query) (provider.Stream, error) {
	if f.streamFn != nil {
		return f.streamFn(ctx, index, q)
	}
	return nil, domain.NewUnsupported(domain.FeatureStreaming)
}

func (f *fakeAdapter) Upsert(_ context.Context, _ string, _ domain.Document) error { return nil }

func (f *fakeAdapter) UpsertMany(ctx context.Context, index string, docs []domain.Document) error {
	if f.upsertManyFn != nil {
		return f.upsertManyFn(ctx, index, docs)
	}
	return nil
}

func (f *fakeAdapter) Delete(_ context.Context, _, _ string) error { return nil }

func (f *fakeAdapter) DeleteMany(ctx context.Context, index string, ids []string) error {
	if f.deleteManyFn != nil {
		return f.deleteManyFn(ctx, index, ids)
	}
	return nil
}

func (f *fakeAdapter) Get(_ context.Context, _, _ string) (*domain.Document, error) {
	return nil, nil
}

func (f *fakeAdapter) CreateIndex(_ context.Context, _ string, _ *domain.Schema) error { return nil }
func (f *fakeAdapter) DeleteIndex(_ context.Context, _ string) error                   { return nil }
func (f *fakeAdapter) ListIndexes(_ context.Context) ([]string, error)                 { return nil, nil }
func (f *fakeAdapter) GetSchema(_ context.Context, _ string) (domain.Schema, error) {
	return domain.Schema{}, nil
}
func (f *fakeAdapter) UpdateSchema(_ context.Context, _ string, _ domain.Schema) error { return nil }

func (f *fakeAdapter) HealthCheck(ctx context.Context) error {
	if f.healthFn != nil {
		return f.healthFn(ctx)
	}
	return nil
}

func fullCaps() domain.Capabilities {
	return domain.Capabilities{
		IndexCreation: true, SchemaDefinition: true,
		FullText: true, Facets: true, Highlighting: true,
		VectorSearch: true, Streaming: true, GeoSearch: true, Aggregations: true,
	}
}

// twoProviderRegistry registers x and y with the given descriptors.
func twoProviderRegistry(xCaps, yCaps domain.Capabilities) *registry.Registry {
	return registry.New(map[string]domain.Capabilities{
		"x": xCaps,
		"y": yCaps,
	})
}

func rawDoc(id string, fields map[string]any) domain.Document {
	content, _ := json.Marshal(fields)
	return domain.Document{ID: id, Content: content}
}

func hitsResult(hits ...domain.Hit) domain.ResultSet {
	total := int64(len(hits))
	return domain.ResultSet{Hits: hits, Total: &total}
}
