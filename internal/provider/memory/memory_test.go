package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/searchgate/searchgate/internal/domain"
)

func doc(t *testing.T, id string, fields map[string]any) domain.Document {
	t.Helper()
	content, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return domain.Document{ID: id, Content: content}
}

func seeded(t *testing.T, opts ...Option) *Provider {
	t.Helper()
	p := New("mem", opts...)
	ctx := context.Background()
	if err := p.CreateIndex(ctx, "products", nil); err != nil {
		t.Fatalf("create index: %v", err)
	}
	docs := []domain.Document{
		doc(t, "1", map[string]any{"title": "gaming laptop", "brand": "Acme", "price": 1200.0}),
		doc(t, "2", map[string]any{"title": "office laptop", "brand": "Acme", "price": 700.0}),
		doc(t, "3", map[string]any{"title": "mechanical keyboard", "brand": "Keytron", "price": 90.0}),
	}
	if err := p.UpsertMany(ctx, "products", docs); err != nil {
		t.Fatalf("upsert many: %v", err)
	}
	return p
}

func TestSearch_FullText(t *testing.T) {
	p := seeded(t)
	res, err := p.Search(context.Background(), "products", domain.Query{Text: "laptop"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(res.Hits))
	}
	// Insertion order preserved.
	if res.Hits[0].ID != "1" || res.Hits[1].ID != "2" {
		t.Fatalf("unexpected hit order: %s, %s", res.Hits[0].ID, res.Hits[1].ID)
	}
	if res.Total == nil || *res.Total != 2 {
		t.Fatalf("unexpected total: %v", res.Total)
	}
}

func TestSearch_Filters(t *testing.T) {
	p := seeded(t)
	tests := []struct {
		filter string
		want   []string
	}{
		{"brand:Acme", []string{"1", "2"}},
		{"price>=700", []string{"1", "2"}},
		{"price<100", []string{"3"}},
		{"price!=700", []string{"1", "3"}},
	}
	for _, tc := range tests {
		t.Run(tc.filter, func(t *testing.T) {
			res, err := p.Search(context.Background(), "products", domain.Query{Filters: []string{tc.filter}})
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(res.Hits) != len(tc.want) {
				t.Fatalf("got %d hits, want %d", len(res.Hits), len(tc.want))
			}
			for i, id := range tc.want {
				if res.Hits[i].ID != id {
					t.Errorf("hit %d = %s, want %s", i, res.Hits[i].ID, id)
				}
			}
		})
	}
}

func TestSearch_MalformedFilter(t *testing.T) {
	p := seeded(t)
	_, err := p.Search(context.Background(), "products", domain.Query{Filters: []string{"no-operator-here"}})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("want ErrInvalidQuery, got %v", err)
	}
}

func TestSearch_Sort(t *testing.T) {
	p := seeded(t)
	res, err := p.Search(context.Background(), "products", domain.Query{Sort: []string{"price:desc"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := []string{"1", "2", "3"}
	for i, id := range want {
		if res.Hits[i].ID != id {
			t.Fatalf("hit %d = %s, want %s", i, res.Hits[i].ID, id)
		}
	}
}

func TestSearch_Pagination(t *testing.T) {
	p := seeded(t)
	res, err := p.Search(context.Background(), "products", domain.Query{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].ID != "3" {
		t.Fatalf("unexpected page 2: %+v", res.Hits)
	}
	if res.Total == nil || *res.Total != 3 {
		t.Fatalf("total should cover all matches, got %v", res.Total)
	}
}

func TestSearch_FacetsNative(t *testing.T) {
	p := seeded(t)
	res, err := p.Search(context.Background(), "products", domain.Query{Facets: []string{"brand"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	buckets := res.Facets["brand"]
	if len(buckets) != 2 {
		t.Fatalf("got %d buckets, want 2", len(buckets))
	}
	if buckets[0].Value != "Acme" || buckets[0].Count != 2 {
		t.Fatalf("unexpected top bucket: %+v", buckets[0])
	}
}

func TestSearch_Highlighting(t *testing.T) {
	p := seeded(t)
	res, err := p.Search(context.Background(), "products", domain.Query{
		Text:      "laptop",
		Highlight: &domain.HighlightSpec{Fields: []string{"title"}},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := res.Hits[0].Highlights["title"]
	if len(got) != 1 || got[0] != "gaming <mark>laptop</mark>" {
		t.Fatalf("unexpected highlight: %v", got)
	}
}

func TestSearch_UnsupportedFeature(t *testing.T) {
	caps := New("x").Capabilities()
	caps.Facets = false
	p := seeded(t, WithCapabilities(caps))

	_, err := p.Search(context.Background(), "products", domain.Query{Facets: []string{"brand"}})
	f, ok := domain.UnsupportedFeature(err)
	if !ok || f != domain.FeatureFacets {
		t.Fatalf("want unsupported(facets), got %v", err)
	}
}

func TestSearch_IndexNotFound(t *testing.T) {
	p := New("mem")
	_, err := p.Search(context.Background(), "missing", domain.Query{})
	if !errors.Is(err, domain.ErrIndexNotFound) {
		t.Fatalf("want ErrIndexNotFound, got %v", err)
	}
}

func TestStreamSearch_YieldsAllMatches(t *testing.T) {
	p := seeded(t)
	stream, err := p.StreamSearch(context.Background(), "products", domain.Query{Text: "laptop"})
	if err != nil {
		t.Fatalf("stream search: %v", err)
	}
	var ids []string
	for {
		hit, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		ids = append(ids, hit.ID)
	}
	if len(ids) != 2 {
		t.Fatalf("streamed %d hits, want 2", len(ids))
	}
}

func TestStreamSearch_UnsupportedWhenDisabled(t *testing.T) {
	caps := New("x").Capabilities()
	caps.Streaming = false
	p := seeded(t, WithCapabilities(caps))

	_, err := p.StreamSearch(context.Background(), "products", domain.Query{})
	f, ok := domain.UnsupportedFeature(err)
	if !ok || f != domain.FeatureStreaming {
		t.Fatalf("want unsupported(streaming), got %v", err)
	}
}

func TestUpsertMany_Idempotent(t *testing.T) {
	p := seeded(t)
	ctx := context.Background()
	batch := []domain.Document{
		doc(t, "1", map[string]any{"title": "gaming laptop", "brand": "Acme"}),
		doc(t, "4", map[string]any{"title": "mouse", "brand": "Acme"}),
	}
	if err := p.UpsertMany(ctx, "products", batch); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := p.UpsertMany(ctx, "products", batch); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	res, err := p.Search(ctx, "products", domain.Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Hits) != 4 {
		t.Fatalf("got %d docs after replay, want 4", len(res.Hits))
	}
}

func TestUpsertMany_MaxBatchSize(t *testing.T) {
	caps := New("x").Capabilities()
	caps.MaxBatchSize = 2
	p := seeded(t, WithCapabilities(caps))

	batch := make([]domain.Document, 3)
	for i := range batch {
		batch[i] = doc(t, fmt.Sprintf("b%d", i), map[string]any{"n": float64(i)})
	}
	err := p.UpsertMany(context.Background(), "products", batch)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("want ErrInvalidQuery for oversized batch, got %v", err)
	}
}

func TestGet_AbsentReturnsNil(t *testing.T) {
	p := seeded(t)
	got, err := p.Get(context.Background(), "products", "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil for absent doc, got %+v", got)
	}
}

func TestDelete_IdempotentAndOrderMaintained(t *testing.T) {
	p := seeded(t)
	ctx := context.Background()
	if err := p.Delete(ctx, "products", "2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := p.Delete(ctx, "products", "2"); err != nil {
		t.Fatalf("repeat delete should be a no-op: %v", err)
	}
	res, err := p.Search(ctx, "products", domain.Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Hits) != 2 || res.Hits[0].ID != "1" || res.Hits[1].ID != "3" {
		t.Fatalf("unexpected docs after delete: %+v", res.Hits)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	p := New("mem")
	ctx := context.Background()
	schema := domain.Schema{
		Fields: []domain.SchemaField{
			{Name: "title", Type: domain.FieldTypeText, Index: true},
			{Name: "brand", Type: domain.FieldTypeKeyword, Facet: true},
		},
	}
	if err := p.CreateIndex(ctx, "catalog", &schema); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := p.GetSchema(ctx, "catalog")
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if len(got.Fields) != 2 || got.Fields[1].Name != "brand" {
		t.Fatalf("unexpected schema: %+v", got)
	}

	schema.Fields = append(schema.Fields, domain.SchemaField{Name: "price", Type: domain.FieldTypeFloat, Sort: true})
	if err := p.UpdateSchema(ctx, "catalog", schema); err != nil {
		t.Fatalf("update schema: %v", err)
	}
	got, _ = p.GetSchema(ctx, "catalog")
	if len(got.Fields) != 3 {
		t.Fatalf("schema update not applied: %+v", got)
	}
}

func TestCreateIndex_GeoFieldRejected(t *testing.T) {
	p := New("mem")
	schema := domain.Schema{Fields: []domain.SchemaField{{Name: "loc", Type: domain.FieldTypeGeoPoint}}}
	err := p.CreateIndex(context.Background(), "places", &schema)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("want ErrInvalidQuery for geo field, got %v", err)
	}
}

func TestListIndexes_Sorted(t *testing.T) {
	p := New("mem")
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := p.CreateIndex(ctx, name, nil); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	names, err := p.ListIndexes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}
