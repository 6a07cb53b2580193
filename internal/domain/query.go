package domain

import (
	"fmt"
	"strings"
)

// aggregationFacetThreshold is the facet count beyond which a query is
// considered aggregation-heavy rather than a plain faceted lookup.
const aggregationFacetThreshold = 5

// Query is the provider-independent search request. Filter and sort
// expressions are opaque to the core: they are validated syntactically
// (balanced tokens) only, semantic validity is a provider concern.
type Query struct {
	Text    string   `json:"q,omitempty"`
	Filters []string `json:"filters,omitempty"`
	Sort    []string `json:"sort,omitempty"`
	Facets  []string `json:"facets,omitempty"`

	// Page and PerPage select page-based pagination (1-based page).
	// Offset selects raw offset pagination. When both modes are present,
	// page-based pagination is authoritative.
	Page    int  `json:"page,omitempty"`
	PerPage int  `json:"per_page,omitempty"`
	Offset  *int `json:"offset,omitempty"`

	Highlight *HighlightSpec `json:"highlight,omitempty"`
	Vector    *VectorSpec    `json:"vector,omitempty"`
	Config    *QueryConfig   `json:"config,omitempty"`
}

// HighlightSpec configures result snippet highlighting.
type HighlightSpec struct {
	Fields    []string `json:"fields"`
	PreTag    string   `json:"pre_tag,omitempty"`
	PostTag   string   `json:"post_tag,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

// DefaultPreTag and DefaultPostTag are the highlight markers used when the
// spec leaves them empty.
const (
	DefaultPreTag  = "<mark>"
	DefaultPostTag = "</mark>"
)

// VectorSpec requests vector search, either with a raw vector or with text
// to be embedded client-side before dispatch.
type VectorSpec struct {
	Values []float32 `json:"values,omitempty"`
	Text   string    `json:"text,omitempty"`
	Field  string    `json:"field,omitempty"`
	K      int       `json:"k,omitempty"`
}

// QueryConfig carries advanced, mostly provider-tuned settings.
type QueryConfig struct {
	TimeoutMS      int                `json:"timeout_ms,omitempty"`
	BoostFields    map[string]float64 `json:"boost_fields,omitempty"`
	ProviderParams map[string]any     `json:"provider_params,omitempty"`
}

// Validate checks the query for structural correctness.
func (q Query) Validate() error {
	if q.Page < 0 || q.PerPage < 0 {
		return fmt.Errorf("pagination values must not be negative: %w", ErrInvalidQuery)
	}
	if q.Offset != nil && *q.Offset < 0 {
		return fmt.Errorf("offset must not be negative: %w", ErrInvalidQuery)
	}
	if q.Page > 0 && q.PerPage == 0 {
		return fmt.Errorf("page requires per_page: %w", ErrInvalidQuery)
	}
	for _, f := range q.Filters {
		if err := checkBalanced(f); err != nil {
			return fmt.Errorf("filter %q: %v: %w", f, err, ErrInvalidQuery)
		}
	}
	for _, s := range q.Sort {
		if err := checkBalanced(s); err != nil {
			return fmt.Errorf("sort %q: %v: %w", s, err, ErrInvalidQuery)
		}
	}
	if q.Vector != nil && len(q.Vector.Values) == 0 && q.Vector.Text == "" {
		return fmt.Errorf("vector spec needs values or text: %w", ErrInvalidQuery)
	}
	return nil
}

// Window resolves the authoritative pagination mode into an offset and limit.
// Page-based pagination wins when both modes are present.
func (q Query) Window(defaultPerPage int) (offset, limit int) {
	limit = q.PerPage
	if limit == 0 {
		limit = defaultPerPage
	}
	if q.Page > 0 {
		return (q.Page - 1) * limit, limit
	}
	if q.Offset != nil {
		return *q.Offset, limit
	}
	return 0, limit
}

// Features lists the canonical features this query exercises.
func (q Query) Features() []Feature {
	var fs []Feature
	if q.Text != "" {
		fs = append(fs, FeatureFullText)
	}
	if len(q.Facets) > 0 {
		fs = append(fs, FeatureFacets)
	}
	if len(q.Facets) > aggregationFacetThreshold {
		fs = append(fs, FeatureAggregations)
	}
	if q.Highlight != nil {
		fs = append(fs, FeatureHighlighting)
	}
	if q.Vector != nil {
		fs = append(fs, FeatureVectorSearch)
	}
	if q.UsesGeo() {
		fs = append(fs, FeatureGeoSearch)
	}
	return fs
}

// UsesGeo reports whether any filter expression requires geospatial support.
func (q Query) UsesGeo() bool {
	for _, f := range q.Filters {
		if strings.Contains(f, "geo_distance") ||
			strings.Contains(f, "geo_bounding_box") ||
			strings.Contains(f, "latitude") ||
			strings.Contains(f, "longitude") {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the query. Degradation rewrites work on the
// copy so the caller's query is never mutated.
func (q Query) Clone() Query {
	out := q
	out.Filters = append([]string(nil), q.Filters...)
	out.Sort = append([]string(nil), q.Sort...)
	out.Facets = append([]string(nil), q.Facets...)
	if q.Offset != nil {
		v := *q.Offset
		out.Offset = &v
	}
	if q.Highlight != nil {
		h := *q.Highlight
		h.Fields = append([]string(nil), q.Highlight.Fields...)
		out.Highlight = &h
	}
	if q.Vector != nil {
		v := *q.Vector
		v.Values = append([]float32(nil), q.Vector.Values...)
		out.Vector = &v
	}
	if q.Config != nil {
		c := *q.Config
		if q.Config.BoostFields != nil {
			c.BoostFields = make(map[string]float64, len(q.Config.BoostFields))
			for k, val := range q.Config.BoostFields {
				c.BoostFields[k] = val
			}
		}
		if q.Config.ProviderParams != nil {
			c.ProviderParams = make(map[string]any, len(q.Config.ProviderParams))
			for k, val := range q.Config.ProviderParams {
				c.ProviderParams[k] = val
			}
		}
		out.Config = &c
	}
	return out
}

// checkBalanced verifies that parentheses, brackets, and quotes in an opaque
// expression are balanced. Quoted sections may contain any bracket.
func checkBalanced(expr string) error {
	var stack []rune
	var quote rune
	for _, r := range expr {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'':
			quote = r
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 {
				return fmt.Errorf("unbalanced %q", r)
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if (r == ')' && open != '(') || (r == ']' && open != '[') || (r == '}' && open != '{') {
				return fmt.Errorf("mismatched %q", r)
			}
		}
	}
	if quote != 0 {
		return fmt.Errorf("unterminated quote")
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q", stack[len(stack)-1])
	}
	return nil
}
