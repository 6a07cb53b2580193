// Package registry is the static capability lookup table for configured
// providers. Descriptors are assembled once at startup from built-in engine
// profiles plus per-provider configuration overrides; no live probing.
package registry

import (
	"fmt"

	"github.com/searchgate/searchgate/internal/domain"
)

// Registry maps provider ids to immutable capability descriptors.
type Registry struct {
	caps map[string]domain.Capabilities
}

// New creates a registry from a fixed provider-id to descriptor mapping.
// The map is copied; the registry is read-only afterwards.
func New(descriptors map[string]domain.Capabilities) *Registry {
	caps := make(map[string]domain.Capabilities, len(descriptors))
	for id, c := range descriptors {
		caps[id] = c
	}
	return &Registry{caps: caps}
}

// Capabilities returns the descriptor for a provider id. An unknown id is a
// configuration bug, reported as an internal error.
func (r *Registry) Capabilities(providerID string) (domain.Capabilities, error) {
	c, ok := r.caps[providerID]
	if !ok {
		return domain.Capabilities{}, fmt.Errorf("unknown provider %q: %w", providerID, domain.ErrInternal)
	}
	return c, nil
}

// Supports reports whether a provider natively supports a feature.
func (r *Registry) Supports(providerID string, f domain.Feature) (bool, error) {
	c, err := r.Capabilities(providerID)
	if err != nil {
		return false, err
	}
	return c.Supports(f), nil
}

// Providers lists the registered provider ids (order unspecified).
func (r *Registry) Providers() []string {
	ids := make([]string, 0, len(r.caps))
	for id := range r.caps {
		ids = append(ids, id)
	}
	return ids
}

// Builtin returns the capability profile for a known engine kind. Operators
// override individual flags per provider in configuration; the profile is the
// conservative baseline for the engine family.
func Builtin(kind string) (domain.Capabilities, bool) {
	common := []domain.FieldType{
		domain.FieldTypeText,
		domain.FieldTypeKeyword,
		domain.FieldTypeInteger,
		domain.FieldTypeFloat,
		domain.FieldTypeBoolean,
		domain.FieldTypeDate,
	}
	withGeo := append(append([]domain.FieldType(nil), common...), domain.FieldTypeGeoPoint)

	switch kind {
	case "elasticsearch":
		return domain.Capabilities{
			IndexCreation: true, SchemaDefinition: true,
			FullText: true, Facets: true, Highlighting: true,
			VectorSearch: false, // plugin-dependent, off by default
			Streaming:    true,  // scroll API
			GeoSearch:    true, Aggregations: true,
			MaxBatchSize: 1000, MaxQuerySize: 32768,
			FieldTypes: withGeo,
		}, true
	case "opensearch":
		return domain.Capabilities{
			IndexCreation: true, SchemaDefinition: true,
			FullText: true, Facets: true, Highlighting: true,
			VectorSearch: true, Streaming: true,
			GeoSearch: true, Aggregations: true,
			MaxBatchSize: 1000, MaxQuerySize: 32768,
			FieldTypes: withGeo,
		}, true
	case "typesense":
		return domain.Capabilities{
			IndexCreation: true, SchemaDefinition: true,
			FullText: true, Facets: true, Highlighting: true,
			VectorSearch: true, Streaming: false,
			GeoSearch: true, Aggregations: false,
			MaxBatchSize: 100, MaxQuerySize: 2048,
			FieldTypes: withGeo,
		}, true
	case "meilisearch":
		return domain.Capabilities{
			IndexCreation: true, SchemaDefinition: true,
			FullText: true, Facets: true, Highlighting: true,
			VectorSearch: false, Streaming: false,
			GeoSearch: true, Aggregations: false,
			MaxBatchSize: 1000, MaxQuerySize: 4096,
			FieldTypes: withGeo,
		}, true
	case "algolia":
		return domain.Capabilities{
			IndexCreation: true, SchemaDefinition: true,
			FullText: true, Facets: true, Highlighting: true,
			VectorSearch: false, Streaming: false,
			GeoSearch: true, Aggregations: false,
			MaxBatchSize: 1000, MaxQuerySize: 512,
			FieldTypes: withGeo,
		}, true
	case "memory":
		return domain.Capabilities{
			IndexCreation: true, SchemaDefinition: true,
			FullText: true, Facets: true, Highlighting: true,
			VectorSearch: false, Streaming: true,
			GeoSearch: false, Aggregations: false,
			FieldTypes: common,
		}, true
	default:
		return domain.Capabilities{}, false
	}
}

// Override returns a copy of caps with the named feature flags replaced.
// Unknown feature names are rejected so configuration typos fail loudly.
func Override(caps domain.Capabilities, flags map[string]bool) (domain.Capabilities, error) {
	for name, on := range flags {
		switch domain.Feature(name) {
		case domain.FeatureIndexCreation:
			caps.IndexCreation = on
		case domain.FeatureSchemaDefinition:
			caps.SchemaDefinition = on
		case domain.FeatureFullText:
			caps.FullText = on
		case domain.FeatureFacets:
			caps.Facets = on
		case domain.FeatureHighlighting:
			caps.Highlighting = on
		case domain.FeatureVectorSearch:
			caps.VectorSearch = on
		case domain.FeatureStreaming:
			caps.Streaming = on
		case domain.FeatureGeoSearch:
			caps.GeoSearch = on
		case domain.FeatureAggregations:
			caps.Aggregations = on
		default:
			return domain.Capabilities{}, fmt.Errorf("unknown capability flag %q", name)
		}
	}
	return caps, nil
}
