package searchgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestNew_NoProviders(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("expected error when no provider registered")
	}
}

func TestNew_UnknownPrimary(t *testing.T) {
	_, err := New(WithMemoryProvider("mem"), WithPrimary("ghost"))
	if err == nil {
		t.Fatal("expected error for unregistered primary")
	}
}

func TestNew_UnknownStateDriver(t *testing.T) {
	cfg := &clientConfig{stateDriver: "etcd"}
	_, _, err := createStateStore(cfg)
	if err == nil {
		t.Fatal("expected error for unknown state driver")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}

	WithRedisState("localhost:6379", "secret").apply(cfg)
	if cfg.stateDriver != "redis" {
		t.Errorf("driver = %q, want redis", cfg.stateDriver)
	}
	if cfg.redisAddrs[0] != "localhost:6379" {
		t.Errorf("addr = %q, want localhost:6379", cfg.redisAddrs[0])
	}
	if cfg.redisPassword != "secret" {
		t.Errorf("password = %q, want secret", cfg.redisPassword)
	}

	WithPrimary("es-main").apply(cfg)
	if cfg.primary != "es-main" {
		t.Errorf("primary = %q, want es-main", cfg.primary)
	}

	WithRoute(ClassVector, "es-main", "ts-eu").apply(cfg)
	if got := cfg.routes[ClassVector]; len(got) != 2 || got[0] != "es-main" {
		t.Errorf("vector route = %v", got)
	}

	WithBatchTuning(500, 2, 5).apply(cfg)
	if cfg.chunkSize != 500 || cfg.checkpointEvery != 2 || cfg.maxRetries != 5 {
		t.Errorf("batch tuning = (%d, %d, %d)", cfg.chunkSize, cfg.checkpointEvery, cfg.maxRetries)
	}

	WithRateLimit("algolia-1", 20, 5).apply(cfg)
	rl := cfg.rateLimits["algolia-1"]
	if rl.PerSecond != 20 || rl.Burst != 5 {
		t.Errorf("rate limit = %+v", rl)
	}
}

func TestClient_Close_NilStore(t *testing.T) {
	c := &Client{store: nil}
	c.Close()
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("ping with in-memory state: %v", err)
	}
}

func TestBuiltinCapabilities(t *testing.T) {
	caps, ok := BuiltinCapabilities("meilisearch")
	if !ok {
		t.Fatal("meilisearch profile missing")
	}
	if !caps.Facets || caps.VectorSearch {
		t.Errorf("unexpected profile: %+v", caps)
	}
	if _, ok := BuiltinCapabilities("solr"); ok {
		t.Error("unknown kind should not resolve")
	}
}

func TestClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	c, err := New(WithMemoryProvider("mem"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	if err := c.CreateIndex(ctx, "articles", nil); err != nil {
		t.Fatalf("create index: %v", err)
	}

	docs := []Document{
		{ID: "a1", Content: json.RawMessage(`{"title":"Go Concurrency Patterns","tag":"go"}`)},
		{ID: "a2", Content: json.RawMessage(`{"title":"Go Generics in Practice","tag":"go"}`)},
		{ID: "a3", Content: json.RawMessage(`{"title":"Rust Ownership","tag":"rust"}`)},
	}
	report, err := c.UpsertMany(ctx, "articles", docs, "")
	if err != nil {
		t.Fatalf("upsert many: %v", err)
	}
	if report.Processed != 3 {
		t.Fatalf("processed = %d, want 3", report.Processed)
	}

	res, err := c.Search(ctx, "articles", Query{Text: "go", Facets: []string{"tag"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(res.Hits))
	}
	if got := res.Facets["tag"]; len(got) != 1 || got[0].Value != "go" || got[0].Count != 2 {
		t.Fatalf("facets = %+v", res.Facets)
	}

	stream, err := c.StreamSearch(ctx, "articles", Query{Text: "go"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	streamed := 0
	for {
		_, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("stream next: %v", err)
		}
		streamed++
	}
	if streamed != 2 {
		t.Fatalf("streamed = %d, want 2", streamed)
	}

	doc, err := c.Get(ctx, "articles", "a3")
	if err != nil || doc == nil {
		t.Fatalf("get: doc=%v err=%v", doc, err)
	}
	if err := c.Delete(ctx, "articles", "a3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	doc, err = c.Get(ctx, "articles", "a3")
	if err != nil || doc != nil {
		t.Fatalf("get after delete: doc=%v err=%v", doc, err)
	}

	if err := c.DeleteIndex(ctx, "articles"); err != nil {
		t.Fatalf("delete index: %v", err)
	}
	_, err = c.Search(ctx, "articles", Query{Text: "go"})
	if !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("search on deleted index: %v", err)
	}
}

func TestClient_DurableBulkResume(t *testing.T) {
	ctx := context.Background()
	c, err := New(WithMemoryProvider("mem"), WithBatchThreshold(10), WithBatchTuning(25, 1, 1))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	if err := c.CreateIndex(ctx, "bulk", nil); err != nil {
		t.Fatalf("create index: %v", err)
	}

	docs := make([]Document, 60)
	for i := range docs {
		docs[i] = Document{
			ID:      fmt.Sprintf("d-%02d", i),
			Content: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		}
	}
	report, err := c.UpsertMany(ctx, "bulk", docs, "import-1")
	if err != nil {
		t.Fatalf("upsert many: %v", err)
	}
	if report.Processed != 60 || report.Chunks != 3 {
		t.Fatalf("report = %+v", report)
	}

	// Replaying the finished operation id starts fresh: the checkpoint was
	// cleared on completion, and upserts are idempotent.
	report, err = c.UpsertMany(ctx, "bulk", docs, "import-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Resumed || report.Processed != 60 {
		t.Fatalf("replay report = %+v", report)
	}
}

func TestClient_UnsupportedFeatureSurfaces(t *testing.T) {
	ctx := context.Background()
	c, err := New(WithMemoryProvider("mem"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	if err := c.CreateIndex(ctx, "places", nil); err != nil {
		t.Fatalf("create index: %v", err)
	}

	_, err = c.Search(ctx, "places", Query{
		Text:    "cafe",
		Filters: []string{"geo_distance(location, 2km)"},
	})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("geo query on non-geo provider: %v", err)
	}
}
