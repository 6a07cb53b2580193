// Package gateway routes canonical operations to configured providers. Search
// traffic walks a per-class priority list with transparent failover and
// graceful degradation; write traffic goes to the primary provider, with
// large batches handed to the durable chunked executor.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/searchgate/searchgate/internal/batch"
	"github.com/searchgate/searchgate/internal/degrade"
	"github.com/searchgate/searchgate/internal/domain"
	"github.com/searchgate/searchgate/internal/metrics"
	"github.com/searchgate/searchgate/internal/provider"
)

// Defaults applied when Config leaves a knob zero.
const (
	DefaultAttemptTimeout = 5 * time.Second
	DefaultStreamPageSize = 50
	DefaultBatchThreshold = 100
)

// Embedder turns query text into a vector for providers that require
// pre-computed embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RateLimit configures a per-provider token bucket.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// Config tunes routing and failover.
type Config struct {
	// Primary handles all write and schema operations. Empty means the
	// lexicographically first registered provider.
	Primary string
	// Routes maps a query class to its provider priority list. A class
	// without a route falls back to primary-first over all providers.
	Routes map[Class][]string
	// AttemptTimeout bounds each single provider attempt.
	AttemptTimeout time.Duration
	// StreamPageSize is the page size used when streaming is emulated
	// through repeated paginated searches.
	StreamPageSize int
	// BatchThreshold is the item count at which UpsertMany and DeleteMany
	// switch from a direct provider call to the durable executor.
	BatchThreshold int
	// RateLimits holds per-provider admission limits.
	RateLimits map[string]RateLimit
}

func (c Config) attemptTimeout() time.Duration {
	if c.AttemptTimeout > 0 {
		return c.AttemptTimeout
	}
	return DefaultAttemptTimeout
}

func (c Config) streamPageSize() int {
	if c.StreamPageSize > 0 {
		return c.StreamPageSize
	}
	return DefaultStreamPageSize
}

func (c Config) batchThreshold() int {
	if c.BatchThreshold > 0 {
		return c.BatchThreshold
	}
	return DefaultBatchThreshold
}

// CapabilitySource is the registry surface the gateway consumes.
type CapabilitySource interface {
	Capabilities(providerID string) (domain.Capabilities, error)
	Providers() []string
}

// Gateway is the federation core.
type Gateway struct {
	adapters map[string]provider.Adapter
	caps     CapabilitySource
	engine   *degrade.Engine
	executor *batch.Executor
	embedder Embedder
	limiters map[string]*limiter
	cfg      Config
	logger   *zap.Logger
	newID    func() string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithExecutor attaches a durable batch executor. Without one, UpsertMany
// and DeleteMany always call the provider directly.
func WithExecutor(e *batch.Executor) Option {
	return func(g *Gateway) { g.executor = e }
}

// WithEmbedder enables vector queries expressed as text.
func WithEmbedder(e Embedder) Option {
	return func(g *Gateway) { g.embedder = e }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithEngine replaces the default degradation engine.
func WithEngine(e *degrade.Engine) Option {
	return func(g *Gateway) { g.engine = e }
}

// New assembles a gateway over registered adapters.
func New(adapters []provider.Adapter, caps CapabilitySource, cfg Config, opts ...Option) (*Gateway, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one provider adapter is required")
	}

	byID := make(map[string]provider.Adapter, len(adapters))
	for _, a := range adapters {
		if _, dup := byID[a.ID()]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", a.ID())
		}
		if _, err := caps.Capabilities(a.ID()); err != nil {
			return nil, fmt.Errorf("provider %q has no capability descriptor: %w", a.ID(), err)
		}
		byID[a.ID()] = a
	}

	limiters := make(map[string]*limiter, len(cfg.RateLimits))
	for id, rl := range cfg.RateLimits {
		limiters[id] = newLimiter(rl.PerSecond, rl.Burst)
	}

	g := &Gateway{
		adapters: byID,
		caps:     caps,
		limiters: limiters,
		cfg:      cfg,
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(g)
	}
	if g.engine == nil {
		g.engine = degrade.New(caps, degrade.WithLogger(g.logger))
	}
	if g.cfg.Primary == "" {
		g.cfg.Primary = g.allProviderIDs()[0]
	}
	if _, ok := byID[g.cfg.Primary]; !ok {
		return nil, fmt.Errorf("primary provider %q is not registered", g.cfg.Primary)
	}
	return g, nil
}

// Search runs the query against the class's provider priority list. Each
// failover decision follows the error class: transient errors advance to the
// next provider, unsupported-at-call-time errors get one simplified retry on
// the same provider, and caller errors surface immediately. When every
// candidate fails, the first candidate gets one last text-only attempt.
func (g *Gateway) Search(ctx context.Context, index string, q domain.Query) (domain.ResultSet, error) {
	if err := q.Validate(); err != nil {
		return domain.ResultSet{}, err
	}
	q, err := g.resolveVector(ctx, q)
	if err != nil {
		return domain.ResultSet{}, err
	}

	candidates := g.candidates(Classify(q))
	var lastErr error
	for _, id := range candidates {
		res, err := g.attempt(ctx, id, index, q)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if f, ok := domain.UnsupportedFeature(err); ok {
			if simplified, retryable := g.engine.Simplify(q, f); retryable {
				res, err = g.attempt(ctx, id, index, simplified)
				if err == nil {
					res.MarkDegraded(f)
					metrics.DegradationsTotal.WithLabelValues(id, string(f)).Inc()
					return res, nil
				}
				lastErr = err
			}
			continue
		}
		if isCallerError(err) {
			return domain.ResultSet{}, err
		}
		if domain.IsFailover(err) {
			g.logger.Warn("provider failed, trying next",
				zap.String("provider", id),
				zap.String("index", index),
				zap.Error(err),
			)
			continue
		}
		return domain.ResultSet{}, err
	}

	// A load-bearing feature no candidate supports must surface: silently
	// dropping it via the text-only fallback would return wrong results.
	if _, unsup := domain.UnsupportedFeature(lastErr); unsup {
		return domain.ResultSet{}, lastErr
	}
	return g.exhaustedFallback(ctx, candidates, index, q, lastErr)
}

// attempt plans, rate-checks, and executes one provider call, then applies
// the plan's emulations to the response.
func (g *Gateway) attempt(ctx context.Context, providerID, index string, q domain.Query) (domain.ResultSet, error) {
	if !g.limiters[providerID].allow() {
		metrics.ProviderAttemptsTotal.WithLabelValues(providerID, metrics.OutcomeRateLimited).Inc()
		return domain.ResultSet{}, fmt.Errorf("provider %q admission: %w", providerID, domain.ErrRateLimited)
	}

	plan, err := g.engine.Plan(q, providerID)
	if err != nil {
		if _, ok := domain.UnsupportedFeature(err); ok {
			metrics.ProviderAttemptsTotal.WithLabelValues(providerID, metrics.OutcomeUnsupported).Inc()
		}
		return domain.ResultSet{}, err
	}

	adapter, ok := g.adapters[providerID]
	if !ok {
		return domain.ResultSet{}, fmt.Errorf("no adapter for provider %q: %w", providerID, domain.ErrInternal)
	}

	actx, cancel := context.WithTimeout(ctx, g.cfg.attemptTimeout())
	defer cancel()

	res, err := adapter.Search(actx, index, plan.Query)
	if err != nil {
		outcome := metrics.OutcomeFailure
		if _, unsup := domain.UnsupportedFeature(err); unsup {
			outcome = metrics.OutcomeUnsupported
		}
		metrics.ProviderAttemptsTotal.WithLabelValues(providerID, outcome).Inc()
		return domain.ResultSet{}, err
	}

	g.engine.Apply(&res, q, plan)
	for _, f := range plan.Emulations {
		metrics.DegradationsTotal.WithLabelValues(providerID, string(f)).Inc()
	}
	for _, f := range plan.Stripped {
		metrics.DegradationsTotal.WithLabelValues(providerID, string(f)).Inc()
	}
	metrics.ProviderAttemptsTotal.WithLabelValues(providerID, metrics.OutcomeSuccess).Inc()
	return res, nil
}

// exhaustedFallback makes the final text-only attempt on the first candidate
// after the whole priority list failed. A failure here surfaces the fallback
// error; the caller gets something definite either way.
func (g *Gateway) exhaustedFallback(ctx context.Context, candidates []string, index string, q domain.Query, lastErr error) (domain.ResultSet, error) {
	if len(candidates) == 0 {
		return domain.ResultSet{}, fmt.Errorf("no route for query: %w", domain.ErrInternal)
	}
	metrics.FallbackExhaustedTotal.Inc()
	g.logger.Warn("all providers failed, attempting text-only fallback",
		zap.String("index", index),
		zap.Error(lastErr),
	)

	simplified := degrade.TextOnly(q)
	res, err := g.attempt(ctx, candidates[0], index, simplified)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("all providers failed (last: %v): %w", lastErr, err)
	}
	for _, f := range q.Features() {
		res.MarkDegraded(f)
	}
	return res, nil
}

// resolveVector fills in vector values from query text via the configured
// embedder. A vector query without values and without an embedder is a
// caller error.
func (g *Gateway) resolveVector(ctx context.Context, q domain.Query) (domain.Query, error) {
	if q.Vector == nil || len(q.Vector.Values) > 0 {
		return q, nil
	}
	if g.embedder == nil {
		return q, fmt.Errorf("vector query text requires an embedding backend: %w", domain.ErrInvalidQuery)
	}
	values, err := g.embedder.Embed(ctx, q.Vector.Text)
	if err != nil {
		return q, fmt.Errorf("embed query text: %w", err)
	}
	out := q.Clone()
	out.Vector.Values = values
	return out, nil
}

// candidates returns the provider priority list for a class. Unrouted
// classes get the primary first, then the rest in stable order.
func (g *Gateway) candidates(class Class) []string {
	if route, ok := g.cfg.Routes[class]; ok && len(route) > 0 {
		out := make([]string, 0, len(route))
		for _, id := range route {
			if _, registered := g.adapters[id]; registered {
				out = append(out, id)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	ids := g.allProviderIDs()
	out := make([]string, 0, len(ids))
	out = append(out, g.cfg.Primary)
	for _, id := range ids {
		if id != g.cfg.Primary {
			out = append(out, id)
		}
	}
	return out
}

func (g *Gateway) allProviderIDs() []string {
	ids := make([]string, 0, len(g.adapters))
	for id := range g.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// isCallerError reports errors that no amount of failover can fix.
func isCallerError(err error) bool {
	return errors.Is(err, domain.ErrInvalidQuery) ||
		errors.Is(err, domain.ErrAuthentication) ||
		errors.Is(err, domain.ErrIndexNotFound)
}

func (g *Gateway) primary() provider.Adapter {
	return g.adapters[g.cfg.Primary]
}

// --- document and index operations: primary provider, no failover ---

// Upsert writes one document through the primary provider.
func (g *Gateway) Upsert(ctx context.Context, index string, doc domain.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := g.primary().Upsert(ctx, index, doc); err != nil {
		return fmt.Errorf("upsert %q/%q: %w", index, doc.ID, err)
	}
	return nil
}

// Delete removes one document by id. Deleting an absent id is a no-op.
func (g *Gateway) Delete(ctx context.Context, index, id string) error {
	if err := g.primary().Delete(ctx, index, id); err != nil {
		return fmt.Errorf("delete %q/%q: %w", index, id, err)
	}
	return nil
}

// Get fetches one document by id; (nil, nil) when absent.
func (g *Gateway) Get(ctx context.Context, index, id string) (*domain.Document, error) {
	doc, err := g.primary().Get(ctx, index, id)
	if err != nil {
		return nil, fmt.Errorf("get %q/%q: %w", index, id, err)
	}
	return doc, nil
}

// CreateIndex creates an index, optionally with a schema.
func (g *Gateway) CreateIndex(ctx context.Context, name string, schema *domain.Schema) error {
	if schema != nil {
		if err := schema.Validate(); err != nil {
			return err
		}
		caps, err := g.caps.Capabilities(g.cfg.Primary)
		if err != nil {
			return err
		}
		for _, field := range schema.Fields {
			if !caps.SupportsFieldType(field.Type) {
				return fmt.Errorf("field %q: type %q: %w", field.Name, field.Type, domain.NewUnsupported(domain.FeatureSchemaDefinition))
			}
		}
	}
	if err := g.primary().CreateIndex(ctx, name, schema); err != nil {
		return fmt.Errorf("create index %q: %w", name, err)
	}
	return nil
}

// DeleteIndex drops an index and its documents.
func (g *Gateway) DeleteIndex(ctx context.Context, name string) error {
	if err := g.primary().DeleteIndex(ctx, name); err != nil {
		return fmt.Errorf("delete index %q: %w", name, err)
	}
	return nil
}

// ListIndexes lists index names on the primary provider.
func (g *Gateway) ListIndexes(ctx context.Context) ([]string, error) {
	names, err := g.primary().ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return names, nil
}

// GetSchema returns the schema of an index.
func (g *Gateway) GetSchema(ctx context.Context, index string) (domain.Schema, error) {
	schema, err := g.primary().GetSchema(ctx, index)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("get schema %q: %w", index, err)
	}
	return schema, nil
}

// UpdateSchema replaces the schema of an index.
func (g *Gateway) UpdateSchema(ctx context.Context, index string, schema domain.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	if err := g.primary().UpdateSchema(ctx, index, schema); err != nil {
		return fmt.Errorf("update schema %q: %w", index, err)
	}
	return nil
}

// GetCapabilities returns the static descriptor for a provider.
func (g *Gateway) GetCapabilities(providerID string) (domain.Capabilities, error) {
	return g.caps.Capabilities(providerID)
}

// Providers lists registered provider ids in stable order.
func (g *Gateway) Providers() []string {
	return g.allProviderIDs()
}

// HealthCheck probes one provider's backend.
func (g *Gateway) HealthCheck(ctx context.Context, providerID string) error {
	adapter, ok := g.adapters[providerID]
	if !ok {
		return fmt.Errorf("unknown provider %q: %w", providerID, domain.ErrInternal)
	}
	if err := adapter.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check %q: %w", providerID, err)
	}
	return nil
}
