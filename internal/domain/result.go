package domain

import "encoding/json"

// Hit is a single search result. Relative order of hits is the order the
// provider returned them; the core never re-sorts.
type Hit struct {
	ID         string              `json:"id"`
	Score      *float64            `json:"score,omitempty"`
	Content    json.RawMessage     `json:"content,omitempty"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// FacetCount is one value bucket in a facet aggregation.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ResultSet is the canonical search response.
type ResultSet struct {
	Hits []Hit `json:"hits"`

	// Total is the full match count; nil when the provider cannot produce
	// it cheaply.
	Total *int64 `json:"total,omitempty"`

	Facets map[string][]FacetCount `json:"facets,omitempty"`
	TookMS int64                   `json:"took_ms"`

	// Degraded lists features the gateway served through emulation or
	// query simplification instead of native provider support.
	Degraded []Feature `json:"degraded,omitempty"`

	// FacetsApproximate marks facet counts computed client-side over the
	// current result page only, not the full matching corpus.
	FacetsApproximate bool `json:"facets_approximate,omitempty"`
}

// MarkDegraded records a feature as degraded, once.
func (r *ResultSet) MarkDegraded(f Feature) {
	for _, d := range r.Degraded {
		if d == f {
			return
		}
	}
	r.Degraded = append(r.Degraded, f)
}

// WasDegraded reports whether the given feature was served degraded.
func (r *ResultSet) WasDegraded(f Feature) bool {
	for _, d := range r.Degraded {
		if d == f {
			return true
		}
	}
	return false
}
