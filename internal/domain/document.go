package domain

import (
	"encoding/json"
	"fmt"
)

// Document is a canonical document: an identifier unique within an index and
// an opaque, provider-agnostic JSON payload. The caller constructs and owns
// it; adapters serialize it but never mutate it.
type Document struct {
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content"`
}

// Validate checks that the document carries an id and well-formed content.
func (d Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document id is required: %w", ErrInvalidQuery)
	}
	if len(d.Content) > 0 && !json.Valid(d.Content) {
		return fmt.Errorf("document %q content is not valid JSON: %w", d.ID, ErrInvalidQuery)
	}
	return nil
}

// Fields decodes the content payload into a field map. Non-object payloads
// yield an empty map; emulation layers treat them as having no facetable or
// highlightable fields.
func (d Document) Fields() map[string]any {
	if len(d.Content) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(d.Content, &m); err != nil {
		return nil
	}
	return m
}
