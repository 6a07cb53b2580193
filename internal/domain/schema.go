package domain

import "fmt"

// FieldType is a canonical schema field type.
type FieldType string

// Canonical field types.
const (
	FieldTypeText     FieldType = "text"
	FieldTypeKeyword  FieldType = "keyword"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeFloat    FieldType = "float"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
	FieldTypeGeoPoint FieldType = "geo-point"
)

// AllFieldTypes lists every canonical field type.
var AllFieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeKeyword,
	FieldTypeInteger,
	FieldTypeFloat,
	FieldTypeBoolean,
	FieldTypeDate,
	FieldTypeGeoPoint,
}

// SchemaField describes one field in an index schema.
type SchemaField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Facet    bool      `json:"facet,omitempty"`
	Sort     bool      `json:"sort,omitempty"`
	Index    bool      `json:"index,omitempty"`
}

// Schema is a canonical index schema.
type Schema struct {
	Fields     []SchemaField `json:"fields"`
	PrimaryKey string        `json:"primary_key,omitempty"`
}

// Validate checks field names for uniqueness, types for membership in the
// canonical set, and the primary key for existence.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field name is required: %w", ErrInvalidQuery)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate schema field %q: %w", f.Name, ErrInvalidQuery)
		}
		seen[f.Name] = struct{}{}
		if !validFieldType(f.Type) {
			return fmt.Errorf("unknown field type %q for %q: %w", f.Type, f.Name, ErrInvalidQuery)
		}
	}
	if s.PrimaryKey != "" {
		if _, ok := seen[s.PrimaryKey]; !ok {
			return fmt.Errorf("primary key %q is not a schema field: %w", s.PrimaryKey, ErrInvalidQuery)
		}
	}
	return nil
}

// Field looks up a schema field by name.
func (s Schema) Field(name string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return SchemaField{}, false
}

func validFieldType(ft FieldType) bool {
	for _, t := range AllFieldTypes {
		if t == ft {
			return true
		}
	}
	return false
}
