package gateway

import "github.com/searchgate/searchgate/internal/domain"

// Class buckets a query by the provider strengths it exercises. Routing
// tables are keyed by class, so vector-heavy queries can prefer a vector
// engine while analytical queries prefer an aggregation engine.
type Class string

const (
	ClassSimple     Class = "simple"
	ClassFaceted    Class = "faceted"
	ClassVector     Class = "vector"
	ClassAnalytical Class = "analytical"
)

// Classify derives a query's routing class from its shape alone. It is a
// pure function of the query: no provider or registry state is consulted.
func Classify(q domain.Query) Class {
	features := q.Features()
	has := func(f domain.Feature) bool {
		for _, qf := range features {
			if qf == f {
				return true
			}
		}
		return false
	}
	switch {
	case has(domain.FeatureVectorSearch):
		return ClassVector
	case has(domain.FeatureAggregations):
		return ClassAnalytical
	case has(domain.FeatureFacets):
		return ClassFaceted
	default:
		return ClassSimple
	}
}
