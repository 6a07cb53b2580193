// Package degrade makes every provider behave as if it supported the full
// canonical feature surface, at a known cost: unsupported features are either
// emulated client-side, stripped from the query, or rejected when they are
// load-bearing for correctness. Every substitution is flagged in the result
// metadata, never applied silently.
package degrade

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/searchgate/searchgate/internal/domain"
)

// Action is the policy applied when a provider lacks a feature.
type Action int

const (
	// ActionEmulate serves the feature client-side after the simplified
	// provider call returns.
	ActionEmulate Action = iota
	// ActionStrip removes the feature from the query and proceeds,
	// marking the result degraded.
	ActionStrip
	// ActionFail surfaces unsupported(feature); the feature is load-bearing
	// and a wrong answer is worse than no answer.
	ActionFail
)

// Policy maps features to degradation actions. The table is static: whether
// a feature is load-bearing is decided per feature at configuration time,
// never inferred at runtime.
type Policy map[domain.Feature]Action

// DefaultPolicy mirrors the stock fallback strategy: facets and highlighting
// are emulated, streaming is emulated through pagination (handled by the
// gateway's stream loop), vector search degrades to text search, and exact
// geo filtering fails rather than returning wrong matches.
func DefaultPolicy() Policy {
	return Policy{
		domain.FeatureFacets:       ActionEmulate,
		domain.FeatureHighlighting: ActionEmulate,
		domain.FeatureStreaming:    ActionEmulate,
		domain.FeatureVectorSearch: ActionStrip,
		domain.FeatureAggregations: ActionStrip,
		domain.FeatureGeoSearch:    ActionFail,
		domain.FeatureFullText:     ActionFail,
	}
}

// CapabilitySource is the registry lookup the engine consumes.
type CapabilitySource interface {
	Capabilities(providerID string) (domain.Capabilities, error)
}

// Engine decides, per query and provider, what to pass through, emulate,
// strip, or reject.
type Engine struct {
	caps   CapabilitySource
	policy Policy
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy replaces the default degradation policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger attaches a logger for degradation warnings.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates a degradation engine over a capability source.
func New(caps CapabilitySource, opts ...Option) *Engine {
	e := &Engine{caps: caps, policy: DefaultPolicy(), logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Plan is the rewritten query plus the degradations to apply around it.
type Plan struct {
	// Query is the (possibly simplified) query to send to the provider.
	Query domain.Query
	// Emulations are features to reconstruct client-side from the response.
	Emulations []domain.Feature
	// Stripped are features removed with no emulation; reported degraded.
	Stripped []domain.Feature
}

// Degraded reports whether the plan deviates from native execution.
func (p Plan) Degraded() bool {
	return len(p.Emulations) > 0 || len(p.Stripped) > 0
}

// Plan inspects every feature the query requests against the provider's
// descriptor and produces the degraded execution plan. It returns
// unsupported(feature) when a load-bearing feature is missing; the gateway
// decides whether to fail over.
func (e *Engine) Plan(q domain.Query, providerID string) (Plan, error) {
	caps, err := e.caps.Capabilities(providerID)
	if err != nil {
		return Plan{}, fmt.Errorf("plan query: %w", err)
	}

	plan := Plan{Query: q.Clone()}
	for _, f := range q.Features() {
		if caps.Supports(f) {
			continue
		}
		action, known := e.policy[f]
		if !known {
			action = ActionFail
		}
		switch action {
		case ActionEmulate:
			stripFeature(&plan.Query, f)
			plan.Emulations = append(plan.Emulations, f)
		case ActionStrip:
			stripFeature(&plan.Query, f)
			plan.Stripped = append(plan.Stripped, f)
		case ActionFail:
			return Plan{}, domain.NewUnsupported(f)
		}
		e.logger.Debug("feature degraded",
			zap.String("provider", providerID),
			zap.String("feature", string(f)),
			zap.Int("action", int(action)),
		)
	}
	return plan, nil
}

// Simplify handles a provider that advertised a feature and still returned
// unsupported for it at call time. It strips the feature and reports whether
// the simplified query is worth retrying on the same provider; load-bearing
// features are not retryable.
func (e *Engine) Simplify(q domain.Query, f domain.Feature) (domain.Query, bool) {
	action, known := e.policy[f]
	if !known || action == ActionFail {
		return q, false
	}
	out := q.Clone()
	stripFeature(&out, f)
	return out, true
}

// TextOnly reduces a query to its free-text core: no filters, facets, sort,
// highlighting, or vector spec. This is the gateway's last-resort fallback
// shape.
func TextOnly(q domain.Query) domain.Query {
	out := domain.Query{
		Text:    q.Text,
		Page:    q.Page,
		PerPage: q.PerPage,
	}
	if q.Offset != nil {
		v := *q.Offset
		out.Offset = &v
	}
	return out
}

// Apply reconstructs emulated features on the provider response and records
// all degradations in the result metadata.
func (e *Engine) Apply(res *domain.ResultSet, original domain.Query, plan Plan) {
	for _, f := range plan.Emulations {
		switch f {
		case domain.FeatureFacets:
			res.Facets = EmulateFacets(res.Hits, original.Facets)
			res.FacetsApproximate = true
		case domain.FeatureHighlighting:
			if original.Highlight != nil {
				EmulateHighlights(res.Hits, original.Text, *original.Highlight)
			}
		}
		res.MarkDegraded(f)
	}
	for _, f := range plan.Stripped {
		res.MarkDegraded(f)
	}
}

// stripFeature removes one feature's footprint from a query in place.
func stripFeature(q *domain.Query, f domain.Feature) {
	switch f {
	case domain.FeatureFacets:
		q.Facets = nil
	case domain.FeatureHighlighting:
		q.Highlight = nil
	case domain.FeatureVectorSearch:
		q.Vector = nil
	case domain.FeatureAggregations:
		if len(q.Facets) > 0 {
			// Keep a bounded facet request; only the aggregation-heavy
			// tail is dropped.
			q.Facets = q.Facets[:min(len(q.Facets), maxPlainFacets)]
		}
	case domain.FeatureGeoSearch:
		filtered := q.Filters[:0]
		for _, flt := range q.Filters {
			geoOnly := domain.Query{Filters: []string{flt}}
			if !geoOnly.UsesGeo() {
				filtered = append(filtered, flt)
			}
		}
		q.Filters = filtered
	}
}

// maxPlainFacets matches the aggregation detection bound in the canonical
// query model.
const maxPlainFacets = 5
