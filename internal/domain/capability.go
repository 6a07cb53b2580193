package domain

// Feature names a canonical capability a provider may or may not support.
type Feature string

// Canonical feature set.
const (
	FeatureIndexCreation    Feature = "index-creation"
	FeatureSchemaDefinition Feature = "schema-definition"
	FeatureFacets           Feature = "facets"
	FeatureHighlighting     Feature = "highlighting"
	FeatureFullText         Feature = "full-text"
	FeatureVectorSearch     Feature = "vector-search"
	FeatureStreaming        Feature = "streaming"
	FeatureGeoSearch        Feature = "geo-search"
	FeatureAggregations     Feature = "aggregations"
)

// AllFeatures lists every canonical feature.
var AllFeatures = []Feature{
	FeatureIndexCreation,
	FeatureSchemaDefinition,
	FeatureFacets,
	FeatureHighlighting,
	FeatureFullText,
	FeatureVectorSearch,
	FeatureStreaming,
	FeatureGeoSearch,
	FeatureAggregations,
}

// Capabilities describes which canonical features a provider supports
// natively, plus its operational limits. Descriptors are loaded once at
// startup and never mutated at runtime.
type Capabilities struct {
	IndexCreation    bool `yaml:"index_creation" json:"index_creation"`
	SchemaDefinition bool `yaml:"schema_definition" json:"schema_definition"`
	Facets           bool `yaml:"facets" json:"facets"`
	Highlighting     bool `yaml:"highlighting" json:"highlighting"`
	FullText         bool `yaml:"full_text" json:"full_text"`
	VectorSearch     bool `yaml:"vector_search" json:"vector_search"`
	Streaming        bool `yaml:"streaming" json:"streaming"`
	GeoSearch        bool `yaml:"geo_search" json:"geo_search"`
	Aggregations     bool `yaml:"aggregations" json:"aggregations"`

	// MaxBatchSize is the largest accepted batch write; 0 means unknown.
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size,omitempty"`
	// MaxQuerySize is the largest accepted query text in bytes; 0 means unknown.
	MaxQuerySize int `yaml:"max_query_size" json:"max_query_size,omitempty"`

	FieldTypes []FieldType `yaml:"field_types" json:"field_types,omitempty"`
}

// Supports reports whether the descriptor marks a feature as native.
func (c Capabilities) Supports(f Feature) bool {
	switch f {
	case FeatureIndexCreation:
		return c.IndexCreation
	case FeatureSchemaDefinition:
		return c.SchemaDefinition
	case FeatureFacets:
		return c.Facets
	case FeatureHighlighting:
		return c.Highlighting
	case FeatureFullText:
		return c.FullText
	case FeatureVectorSearch:
		return c.VectorSearch
	case FeatureStreaming:
		return c.Streaming
	case FeatureGeoSearch:
		return c.GeoSearch
	case FeatureAggregations:
		return c.Aggregations
	default:
		return false
	}
}

// SupportsFieldType reports whether the provider accepts the given field type.
// An empty FieldTypes list means the provider declared no restriction.
func (c Capabilities) SupportsFieldType(ft FieldType) bool {
	if len(c.FieldTypes) == 0 {
		return true
	}
	for _, t := range c.FieldTypes {
		if t == ft {
			return true
		}
	}
	return false
}
