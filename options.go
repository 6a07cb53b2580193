package searchgate

import (
	"time"

	"go.uber.org/zap"

	"github.com/searchgate/searchgate/internal/domain"
	"github.com/searchgate/searchgate/internal/gateway"
	"github.com/searchgate/searchgate/internal/provider"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	adapters     []provider.Adapter
	capabilities map[string]domain.Capabilities

	primary string
	routes  map[gateway.Class][]string

	stateDriver    string // "memory" or "redis"
	redisAddrs     []string
	redisPassword  string
	redisKeyPrefix string

	embedder gateway.Embedder

	attemptTimeout  time.Duration
	streamPageSize  int
	batchThreshold  int
	chunkSize       int
	checkpointEvery int
	maxRetries      int

	rateLimits map[string]gateway.RateLimit

	logger *zap.Logger
}

// WithProvider registers a backend adapter together with its capability
// descriptor. At least one provider is required.
func WithProvider(a Adapter, caps Capabilities) Option {
	return optionFunc(func(c *clientConfig) {
		c.adapters = append(c.adapters, a)
		if c.capabilities == nil {
			c.capabilities = make(map[string]domain.Capabilities)
		}
		c.capabilities[a.ID()] = caps
	})
}

// WithMemoryProvider registers an embedded in-process provider under the
// given id. Useful for tests and single-node deployments.
func WithMemoryProvider(id string) Option {
	return optionFunc(func(c *clientConfig) {
		p := newMemoryProvider(id)
		c.adapters = append(c.adapters, p)
		if c.capabilities == nil {
			c.capabilities = make(map[string]domain.Capabilities)
		}
		c.capabilities[id] = p.Capabilities()
	})
}

// WithPrimary selects the provider that handles writes and schema operations.
// Defaults to the lexicographically first registered provider.
func WithPrimary(providerID string) Option {
	return optionFunc(func(c *clientConfig) {
		c.primary = providerID
	})
}

// WithRoute sets the provider priority list for one query class.
func WithRoute(class Class, providerIDs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		if c.routes == nil {
			c.routes = make(map[gateway.Class][]string)
		}
		c.routes[class] = providerIDs
	})
}

// WithRedisState persists batch operation checkpoints in Redis, so
// interrupted bulk operations resume across process restarts. Without it
// checkpoints live in process memory.
func WithRedisState(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.stateDriver = "redis"
		c.redisAddrs = []string{addr}
		c.redisPassword = password
	})
}

// WithRedisKeyPrefix overrides the key prefix used for checkpoint state.
func WithRedisKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisKeyPrefix = prefix
	})
}

// WithEmbedder sets the text embedding backend. Required for vector queries
// expressed as text; queries with precomputed vectors work without it.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithOpenAIEmbedder wires an OpenAI-compatible embedding endpoint.
func WithOpenAIEmbedder(apiKey, baseURL, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = newOpenAIEmbedder(apiKey, baseURL, model)
	})
}

// WithAttemptTimeout bounds each single provider attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.attemptTimeout = d
	})
}

// WithStreamPageSize sets the page size used when streaming is emulated
// through repeated paginated searches. Default: 50.
func WithStreamPageSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.streamPageSize = n
	})
}

// WithBatchThreshold sets the item count at which bulk operations switch
// from a direct provider call to the durable checkpointed executor.
// Default: 100.
func WithBatchThreshold(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.batchThreshold = n
	})
}

// WithBatchTuning adjusts the durable executor: items per chunk, chunks per
// checkpoint, and retries per chunk.
func WithBatchTuning(chunkSize, checkpointEvery, maxRetries int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = chunkSize
		c.checkpointEvery = checkpointEvery
		c.maxRetries = maxRetries
	})
}

// WithRateLimit caps the request rate admitted to one provider.
func WithRateLimit(providerID string, perSecond float64, burst int) Option {
	return optionFunc(func(c *clientConfig) {
		if c.rateLimits == nil {
			c.rateLimits = make(map[string]gateway.RateLimit)
		}
		c.rateLimits[providerID] = gateway.RateLimit{PerSecond: perSecond, Burst: burst}
	})
}

// WithLogger enables structured logging for client operations.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
