// Package searchgate is the SDK entry point for the federated search
// gateway. A Client fronts one or more backend search engines with a single
// canonical contract: queries degrade gracefully on engines missing a
// feature, transient backend failures fail over to the next route candidate,
// and large bulk operations run through a durable, resumable executor.
package searchgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/searchgate/searchgate/internal/batch"
	"github.com/searchgate/searchgate/internal/domain"
	"github.com/searchgate/searchgate/internal/gateway"
	"github.com/searchgate/searchgate/internal/provider"
	"github.com/searchgate/searchgate/internal/provider/memory"
	"github.com/searchgate/searchgate/internal/registry"
	redisstore "github.com/searchgate/searchgate/internal/store/redis"
	"github.com/searchgate/searchgate/internal/transport/openai"
)

// Canonical model types, re-exported for SDK callers.
type (
	Query         = domain.Query
	HighlightSpec = domain.HighlightSpec
	VectorSpec    = domain.VectorSpec
	Document      = domain.Document
	Hit           = domain.Hit
	ResultSet     = domain.ResultSet
	FacetCount    = domain.FacetCount
	Schema        = domain.Schema
	SchemaField   = domain.SchemaField
	FieldType     = domain.FieldType
	Feature       = domain.Feature
	Capabilities  = domain.Capabilities

	// Adapter is the contract a custom backend integration implements.
	Adapter = provider.Adapter
	// Stream yields hits lazily; Next returns io.EOF when exhausted.
	Stream = provider.Stream
	// Embedder turns query text into a vector.
	Embedder = gateway.Embedder
	// Class is a query routing class.
	Class = gateway.Class
	// Report summarizes a bulk operation run.
	Report = batch.Report
)

// Query routing classes.
const (
	ClassSimple     = gateway.ClassSimple
	ClassFaceted    = gateway.ClassFaceted
	ClassVector     = gateway.ClassVector
	ClassAnalytical = gateway.ClassAnalytical
)

// Canonical error sentinels, matchable with errors.Is.
var (
	ErrIndexNotFound  = domain.ErrIndexNotFound
	ErrInvalidQuery   = domain.ErrInvalidQuery
	ErrUnsupported    = domain.ErrUnsupported
	ErrTimeout        = domain.ErrTimeout
	ErrRateLimited    = domain.ErrRateLimited
	ErrAuthentication = domain.ErrAuthentication
	ErrConnection     = domain.ErrConnection
	ErrInternal       = domain.ErrInternal
)

// BuiltinCapabilities returns the bundled capability profile for an engine
// kind ("elasticsearch", "opensearch", "typesense", "meilisearch", "algolia",
// "memory"). The second result is false for an unknown kind.
func BuiltinCapabilities(kind string) (Capabilities, bool) {
	return registry.Builtin(kind)
}

const defaultReadinessTimeout = 10 * time.Second

// Client is the searchgate SDK entry point.
type Client struct {
	gw     *gateway.Gateway
	store  *redisstore.Store // nil when checkpoints are in-memory
	logger *zap.Logger
}

// New assembles a Client from the given options. At least one provider is
// required.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{stateDriver: "memory"}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.adapters) == 0 {
		return nil, errors.New("searchgate: at least one provider required (use WithProvider or WithMemoryProvider)")
	}
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	stateStore, redisStore, err := createStateStore(cfg)
	if err != nil {
		return nil, err
	}

	executor := batch.NewExecutor(stateStore, executorOptions(cfg, logger)...)

	gwOpts := []gateway.Option{
		gateway.WithExecutor(executor),
		gateway.WithLogger(logger),
	}
	if cfg.embedder != nil {
		gwOpts = append(gwOpts, gateway.WithEmbedder(cfg.embedder))
	}

	gw, err := gateway.New(cfg.adapters, registry.New(cfg.capabilities), gateway.Config{
		Primary:        cfg.primary,
		Routes:         cfg.routes,
		AttemptTimeout: cfg.attemptTimeout,
		StreamPageSize: cfg.streamPageSize,
		BatchThreshold: cfg.batchThreshold,
		RateLimits:     cfg.rateLimits,
	}, gwOpts...)
	if err != nil {
		if redisStore != nil {
			redisStore.Close()
		}
		return nil, fmt.Errorf("searchgate: %w", err)
	}

	return &Client{gw: gw, store: redisStore, logger: logger}, nil
}

func createStateStore(cfg *clientConfig) (batch.StateStore, *redisstore.Store, error) {
	switch cfg.stateDriver {
	case "memory":
		return batch.NewMemoryStore(), nil, nil
	case "redis":
		s, err := redisstore.NewStore(redisstore.Config{
			Addrs:     cfg.redisAddrs,
			Password:  cfg.redisPassword,
			KeyPrefix: cfg.redisKeyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("searchgate: create redis state store: %w", err)
		}
		if err := s.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("searchgate: redis not ready: %w", err)
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("searchgate: unknown state driver %q", cfg.stateDriver)
	}
}

func executorOptions(cfg *clientConfig, logger *zap.Logger) []batch.ExecutorOption {
	opts := []batch.ExecutorOption{batch.WithExecutorLogger(logger)}
	if cfg.chunkSize > 0 {
		opts = append(opts, batch.WithChunkSize(cfg.chunkSize))
	}
	if cfg.checkpointEvery > 0 {
		opts = append(opts, batch.WithCheckpointEvery(cfg.checkpointEvery))
	}
	if cfg.maxRetries > 0 {
		opts = append(opts, batch.WithMaxRetries(cfg.maxRetries))
	}
	return opts
}

func newMemoryProvider(id string) *memory.Provider {
	return memory.New(id)
}

func newOpenAIEmbedder(apiKey, baseURL, model string) Embedder {
	return openai.NewEmbedder(&openai.Config{APIKey: apiKey, BaseURL: baseURL, Model: model})
}

// Close releases the checkpoint store connection, if any.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks checkpoint store connectivity. In-memory state always pings OK.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Search runs a canonical query with routing, degradation, and failover.
func (c *Client) Search(ctx context.Context, index string, q Query) (ResultSet, error) {
	return c.gw.Search(ctx, index, q)
}

// StreamSearch returns a lazy hit stream, emulated via pagination on
// providers without native streaming.
func (c *Client) StreamSearch(ctx context.Context, index string, q Query) (Stream, error) {
	return c.gw.StreamSearch(ctx, index, q)
}

// Upsert stores or replaces a single document on the primary provider.
func (c *Client) Upsert(ctx context.Context, index string, doc Document) error {
	return c.gw.Upsert(ctx, index, doc)
}

// UpsertMany stores documents in bulk. Batches above the threshold run
// through the durable executor; pass a stable operationID to resume an
// interrupted run, or empty for a generated one.
func (c *Client) UpsertMany(ctx context.Context, index string, docs []Document, operationID string) (Report, error) {
	return c.gw.UpsertMany(ctx, index, docs, operationID)
}

// Delete removes a document. Deleting an absent id is a no-op.
func (c *Client) Delete(ctx context.Context, index, id string) error {
	return c.gw.Delete(ctx, index, id)
}

// DeleteMany removes documents in bulk, with the same durability contract as
// UpsertMany.
func (c *Client) DeleteMany(ctx context.Context, index string, ids []string, operationID string) (Report, error) {
	return c.gw.DeleteMany(ctx, index, ids, operationID)
}

// Get returns a document by id, or (nil, nil) when absent.
func (c *Client) Get(ctx context.Context, index, id string) (*Document, error) {
	return c.gw.Get(ctx, index, id)
}

// CreateIndex creates an index on the primary provider, optionally with a
// schema.
func (c *Client) CreateIndex(ctx context.Context, name string, schema *Schema) error {
	return c.gw.CreateIndex(ctx, name, schema)
}

// DeleteIndex removes an index and its documents.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	return c.gw.DeleteIndex(ctx, name)
}

// ListIndexes returns index names from the primary provider.
func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	return c.gw.ListIndexes(ctx)
}

// GetSchema returns the schema of an index.
func (c *Client) GetSchema(ctx context.Context, index string) (Schema, error) {
	return c.gw.GetSchema(ctx, index)
}

// UpdateSchema replaces the schema of an index.
func (c *Client) UpdateSchema(ctx context.Context, index string, schema Schema) error {
	return c.gw.UpdateSchema(ctx, index, schema)
}

// GetCapabilities returns the registered capability descriptor of a provider.
func (c *Client) GetCapabilities(providerID string) (Capabilities, error) {
	return c.gw.GetCapabilities(providerID)
}

// Providers returns the registered provider ids, sorted.
func (c *Client) Providers() []string {
	return c.gw.Providers()
}

// HealthCheck probes a single provider.
func (c *Client) HealthCheck(ctx context.Context, providerID string) error {
	return c.gw.HealthCheck(ctx, providerID)
}
