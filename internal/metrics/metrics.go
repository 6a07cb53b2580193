package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for provider attempt counters.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
	OutcomeUnsupported = "unsupported"
)

var (
	// ProviderAttemptsTotal counts gateway attempts per provider and outcome.
	// Recording must never block or fail the request path.
	ProviderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchgate",
			Name:      "provider_attempts_total",
			Help:      "Provider attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// DegradationsTotal counts features served via emulation or
	// simplification instead of native provider support.
	DegradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchgate",
			Name:      "feature_degradations_total",
			Help:      "Features degraded per provider",
		},
		[]string{"provider", "feature"},
	)

	// FallbackExhaustedTotal counts requests that ran the final simplified
	// attempt after every candidate failed.
	FallbackExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "searchgate",
			Name:      "fallback_exhausted_total",
			Help:      "Requests that exhausted the provider priority list",
		},
	)

	// BatchChunksTotal counts durable batch executor chunk outcomes.
	BatchChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchgate",
			Name:      "batch_chunks_total",
			Help:      "Batch executor chunks by outcome",
		},
		[]string{"kind", "outcome"},
	)
)

var registerGatewayOnce sync.Once

// RegisterGatewayMetrics registers the gateway and batch collectors with the
// default registry. Explicit registration (no init()) so embedders of the
// core can opt out.
func RegisterGatewayMetrics() {
	registerGatewayOnce.Do(func() {
		prometheus.MustRegister(ProviderAttemptsTotal)
		prometheus.MustRegister(DegradationsTotal)
		prometheus.MustRegister(FallbackExhaustedTotal)
		prometheus.MustRegister(BatchChunksTotal)
	})
}
