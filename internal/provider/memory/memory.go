// Package memory is an in-process provider adapter. It serves as the
// embedded reference backend and as the deterministic engine behind tests:
// its capability descriptor is configurable, so any combination of native
// support and gaps can be exercised without a network.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/searchgate/searchgate/internal/domain"
	"github.com/searchgate/searchgate/internal/provider"
	"github.com/searchgate/searchgate/internal/registry"
)

// Compile-time check: Provider implements provider.Adapter.
var _ provider.Adapter = (*Provider)(nil)

// Provider is an in-memory search backend.
type Provider struct {
	id   string
	caps domain.Capabilities

	mu      sync.RWMutex
	indexes map[string]*index
}

type index struct {
	schema *domain.Schema
	ids    []string // insertion order
	docs   map[string]domain.Document
}

// Option configures a memory provider.
type Option func(*Provider)

// WithCapabilities overrides the default capability descriptor. Used to
// model engines with arbitrary feature gaps.
func WithCapabilities(caps domain.Capabilities) Option {
	return func(p *Provider) { p.caps = caps }
}

// New creates a memory provider with the built-in "memory" capability profile.
func New(id string, opts ...Option) *Provider {
	caps, _ := registry.Builtin("memory")
	p := &Provider{
		id:      id,
		caps:    caps,
		indexes: make(map[string]*index),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ID returns the provider id.
func (p *Provider) ID() string { return p.id }

// Capabilities returns the provider's descriptor for registry wiring.
func (p *Provider) Capabilities() domain.Capabilities { return p.caps }

// Search runs a canonical query against an index. Features absent from the
// capability descriptor yield unsupported errors, per the adapter contract.
func (p *Provider) Search(_ context.Context, indexName string, q domain.Query) (domain.ResultSet, error) {
	start := time.Now()

	if err := p.checkQueryFeatures(q); err != nil {
		return domain.ResultSet{}, err
	}
	if p.caps.MaxQuerySize > 0 && len(q.Text) > p.caps.MaxQuerySize {
		return domain.ResultSet{}, fmt.Errorf(
			"query text exceeds %d bytes: %w", p.caps.MaxQuerySize, domain.ErrInvalidQuery)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	matched, err := p.match(indexName, q)
	if err != nil {
		return domain.ResultSet{}, err
	}

	if len(q.Sort) > 0 {
		if err := sortDocs(matched, q.Sort); err != nil {
			return domain.ResultSet{}, err
		}
	}

	total := int64(len(matched))
	offset, limit := q.Window(defaultPerPage)
	page := window(matched, offset, limit)

	res := domain.ResultSet{
		Hits:  make([]domain.Hit, 0, len(page)),
		Total: &total,
	}
	terms := queryTerms(q.Text)
	for _, d := range page {
		hit := domain.Hit{ID: d.ID, Content: d.Content}
		if q.Highlight != nil {
			hit.Highlights = highlightDoc(d, terms, *q.Highlight)
		}
		res.Hits = append(res.Hits, hit)
	}

	if len(q.Facets) > 0 {
		res.Facets = facetCounts(matched, q.Facets)
	}

	res.TookMS = time.Since(start).Milliseconds()
	return res, nil
}

// StreamSearch yields every matching hit lazily, in match order.
func (p *Provider) StreamSearch(_ context.Context, indexName string, q domain.Query) (provider.Stream, error) {
	if !p.caps.Streaming {
		return nil, domain.NewUnsupported(domain.FeatureStreaming)
	}
	if err := p.checkQueryFeatures(q); err != nil {
		return nil, err
	}

	p.mu.RLock()
	matched, err := p.match(indexName, q)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return &memStream{docs: matched}, nil
}

type memStream struct {
	docs []domain.Document
	pos  int
}

func (s *memStream) Next(ctx context.Context) (domain.Hit, error) {
	if err := ctx.Err(); err != nil {
		return domain.Hit{}, err
	}
	if s.pos >= len(s.docs) {
		return domain.Hit{}, io.EOF
	}
	d := s.docs[s.pos]
	s.pos++
	return domain.Hit{ID: d.ID, Content: d.Content}, nil
}

// Upsert stores or replaces a document.
func (p *Provider) Upsert(_ context.Context, indexName string, doc domain.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.indexes[indexName]
	if !ok {
		return fmt.Errorf("%q: %w", indexName, domain.ErrIndexNotFound)
	}
	if _, exists := idx.docs[doc.ID]; !exists {
		idx.ids = append(idx.ids, doc.ID)
	}
	idx.docs[doc.ID] = doc
	return nil
}

// UpsertMany stores or replaces documents. Idempotent: replaying the same
// batch leaves the index in the same state.
func (p *Provider) UpsertMany(ctx context.Context, indexName string, docs []domain.Document) error {
	if p.caps.MaxBatchSize > 0 && len(docs) > p.caps.MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds max %d: %w",
			len(docs), p.caps.MaxBatchSize, domain.ErrInvalidQuery)
	}
	for _, d := range docs {
		if err := p.Upsert(ctx, indexName, d); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a document. Deleting an absent id is a no-op.
func (p *Provider) Delete(_ context.Context, indexName, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.indexes[indexName]
	if !ok {
		return fmt.Errorf("%q: %w", indexName, domain.ErrIndexNotFound)
	}
	if _, exists := idx.docs[id]; !exists {
		return nil
	}
	delete(idx.docs, id)
	for i, did := range idx.ids {
		if did == id {
			idx.ids = append(idx.ids[:i], idx.ids[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteMany removes documents by id.
func (p *Provider) DeleteMany(ctx context.Context, indexName string, ids []string) error {
	if p.caps.MaxBatchSize > 0 && len(ids) > p.caps.MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds max %d: %w",
			len(ids), p.caps.MaxBatchSize, domain.ErrInvalidQuery)
	}
	for _, id := range ids {
		if err := p.Delete(ctx, indexName, id); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a document by id, or (nil, nil) when absent.
func (p *Provider) Get(_ context.Context, indexName, id string) (*domain.Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idx, ok := p.indexes[indexName]
	if !ok {
		return nil, fmt.Errorf("%q: %w", indexName, domain.ErrIndexNotFound)
	}
	d, exists := idx.docs[id]
	if !exists {
		return nil, nil
	}
	return &d, nil
}

// CreateIndex creates an index, optionally with a schema.
func (p *Provider) CreateIndex(_ context.Context, name string, schema *domain.Schema) error {
	if !p.caps.IndexCreation {
		return domain.NewUnsupported(domain.FeatureIndexCreation)
	}
	if schema != nil {
		if !p.caps.SchemaDefinition {
			return domain.NewUnsupported(domain.FeatureSchemaDefinition)
		}
		if err := p.validateSchema(*schema); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.indexes[name]; exists {
		return fmt.Errorf("index %q already exists: %w", name, domain.ErrInvalidQuery)
	}
	p.indexes[name] = &index{schema: schema, docs: make(map[string]domain.Document)}
	return nil
}

// DeleteIndex removes an index and its documents.
func (p *Provider) DeleteIndex(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.indexes[name]; !ok {
		return fmt.Errorf("%q: %w", name, domain.ErrIndexNotFound)
	}
	delete(p.indexes, name)
	return nil
}

// ListIndexes returns index names sorted lexicographically.
func (p *Provider) ListIndexes(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.indexes))
	for name := range p.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetSchema returns the index schema; an index created without one yields an
// empty schema.
func (p *Provider) GetSchema(_ context.Context, indexName string) (domain.Schema, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idx, ok := p.indexes[indexName]
	if !ok {
		return domain.Schema{}, fmt.Errorf("%q: %w", indexName, domain.ErrIndexNotFound)
	}
	if idx.schema == nil {
		return domain.Schema{}, nil
	}
	return *idx.schema, nil
}

// UpdateSchema replaces the index schema.
func (p *Provider) UpdateSchema(_ context.Context, indexName string, schema domain.Schema) error {
	if !p.caps.SchemaDefinition {
		return domain.NewUnsupported(domain.FeatureSchemaDefinition)
	}
	if err := p.validateSchema(schema); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.indexes[indexName]
	if !ok {
		return fmt.Errorf("%q: %w", indexName, domain.ErrIndexNotFound)
	}
	idx.schema = &schema
	return nil
}

// HealthCheck always succeeds for the in-process backend.
func (p *Provider) HealthCheck(_ context.Context) error { return nil }

// checkQueryFeatures rejects query features the descriptor does not cover.
func (p *Provider) checkQueryFeatures(q domain.Query) error {
	for _, f := range q.Features() {
		if !p.caps.Supports(f) {
			return domain.NewUnsupported(f)
		}
	}
	return nil
}

func (p *Provider) validateSchema(s domain.Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, f := range s.Fields {
		if !p.caps.SupportsFieldType(f.Type) {
			return fmt.Errorf("field type %q not supported: %w", f.Type, domain.ErrInvalidQuery)
		}
	}
	return nil
}

const defaultPerPage = 20

// match returns documents matching text and filters, in insertion order.
// Caller holds p.mu.
func (p *Provider) match(indexName string, q domain.Query) ([]domain.Document, error) {
	idx, ok := p.indexes[indexName]
	if !ok {
		return nil, fmt.Errorf("%q: %w", indexName, domain.ErrIndexNotFound)
	}

	terms := queryTerms(q.Text)
	var matched []domain.Document
	for _, id := range idx.ids {
		d := idx.docs[id]
		fields := d.Fields()
		if !matchesTerms(fields, terms) {
			continue
		}
		ok, err := matchesFilters(fields, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, d)
		}
	}
	return matched, nil
}

func window(docs []domain.Document, offset, limit int) []domain.Document {
	if offset >= len(docs) {
		return nil
	}
	end := offset + limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[offset:end]
}

func queryTerms(text string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(text)) {
		terms = append(terms, t)
	}
	return terms
}

// matchesTerms requires every term to appear in at least one string field.
func matchesTerms(fields map[string]any, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	var haystack []string
	for _, v := range fields {
		haystack = appendStrings(haystack, v)
	}
	for _, term := range terms {
		found := false
		for _, s := range haystack {
			if strings.Contains(strings.ToLower(s), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func appendStrings(dst []string, v any) []string {
	switch val := v.(type) {
	case string:
		return append(dst, val)
	case []any:
		for _, item := range val {
			dst = appendStrings(dst, item)
		}
	}
	return dst
}

// matchesFilters evaluates the subset of filter syntax the memory engine
// understands: "field:value" equality and "field op number" ranges.
func matchesFilters(fields map[string]any, filters []string) (bool, error) {
	for _, f := range filters {
		ok, err := matchesFilter(fields, f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchesFilter(fields map[string]any, filter string) (bool, error) {
	for _, op := range []string{">=", "<=", "!=", ">", "<"} {
		if name, rhs, found := strings.Cut(filter, op); found {
			return matchesRange(fields, strings.TrimSpace(name), op, strings.TrimSpace(rhs))
		}
	}
	if name, rhs, found := strings.Cut(filter, ":"); found {
		return fieldEquals(fields[strings.TrimSpace(name)], strings.TrimSpace(rhs)), nil
	}
	return false, fmt.Errorf("cannot parse filter %q: %w", filter, domain.ErrInvalidQuery)
}

func matchesRange(fields map[string]any, name, op, rhs string) (bool, error) {
	want, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, fmt.Errorf("non-numeric range value %q: %w", rhs, domain.ErrInvalidQuery)
	}
	got, ok := numericField(fields[name])
	if !ok {
		return false, nil
	}
	switch op {
	case ">=":
		return got >= want, nil
	case "<=":
		return got <= want, nil
	case ">":
		return got > want, nil
	case "<":
		return got < want, nil
	case "!=":
		return got != want, nil
	}
	return false, nil
}

func numericField(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func fieldEquals(v any, want string) bool {
	switch val := v.(type) {
	case string:
		return strings.EqualFold(val, want)
	case bool:
		return (want == "true") == val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64) == want
	case []any:
		for _, item := range val {
			if fieldEquals(item, want) {
				return true
			}
		}
	}
	return false
}

// sortDocs orders documents by "field", "field:asc", or "field:desc"
// expressions, applied in reverse so the first expression dominates.
func sortDocs(docs []domain.Document, exprs []string) error {
	fields := make([]map[string]any, len(docs))
	for i, d := range docs {
		fields[i] = d.Fields()
	}
	order := make([]int, len(docs))
	for i := range order {
		order[i] = i
	}

	for i := len(exprs) - 1; i >= 0; i-- {
		field, dir, _ := strings.Cut(exprs[i], ":")
		field = strings.TrimSpace(field)
		desc := strings.EqualFold(strings.TrimSpace(dir), "desc")

		sort.SliceStable(order, func(a, b int) bool {
			av, bv := fields[order[a]][field], fields[order[b]][field]
			if desc {
				return fieldLess(bv, av)
			}
			return fieldLess(av, bv)
		})
	}

	sorted := make([]domain.Document, len(docs))
	for i, idx := range order {
		sorted[i] = docs[idx]
	}
	copy(docs, sorted)
	return nil
}

func fieldLess(a, b any) bool {
	af, aok := numericField(a)
	bf, bok := numericField(b)
	if aok && bok {
		return af < bf
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return as < bs
}

// facetCounts computes exact value counts over the full matched set, buckets
// sorted by descending count then value.
func facetCounts(docs []domain.Document, facetFields []string) map[string][]domain.FacetCount {
	out := make(map[string][]domain.FacetCount, len(facetFields))
	for _, field := range facetFields {
		counts := make(map[string]int)
		for _, d := range docs {
			for _, s := range facetValues(d.Fields()[field]) {
				counts[s]++
			}
		}
		if len(counts) == 0 {
			continue
		}
		buckets := make([]domain.FacetCount, 0, len(counts))
		for v, c := range counts {
			buckets = append(buckets, domain.FacetCount{Value: v, Count: c})
		}
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].Value < buckets[j].Value
		})
		out[field] = buckets
	}
	return out
}

func facetValues(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case bool:
		return []string{strconv.FormatBool(val)}
	case float64:
		return []string{strconv.FormatFloat(val, 'f', -1, 64)}
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, facetValues(item)...)
		}
		return out
	}
	return nil
}

// highlightDoc wraps query terms found in the configured fields.
func highlightDoc(d domain.Document, terms []string, spec domain.HighlightSpec) map[string][]string {
	pre, post := spec.PreTag, spec.PostTag
	if pre == "" {
		pre = domain.DefaultPreTag
	}
	if post == "" {
		post = domain.DefaultPostTag
	}

	fields := d.Fields()
	out := make(map[string][]string)
	for _, name := range spec.Fields {
		text, ok := fields[name].(string)
		if !ok {
			continue
		}
		snippet, matchedAny := wrapTerms(text, terms, pre, post)
		if !matchedAny {
			continue
		}
		if spec.MaxLength > 0 && len(snippet) > spec.MaxLength {
			snippet = snippet[:spec.MaxLength]
		}
		out[name] = append(out[name], snippet)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func wrapTerms(text string, terms []string, pre, post string) (string, bool) {
	matched := false
	lower := strings.ToLower(text)
	var b strings.Builder
	i := 0
	for i < len(text) {
		advanced := false
		for _, term := range terms {
			if term == "" {
				continue
			}
			if strings.HasPrefix(lower[i:], term) {
				b.WriteString(pre)
				b.WriteString(text[i : i+len(term)])
				b.WriteString(post)
				i += len(term)
				matched = true
				advanced = true
				break
			}
		}
		if !advanced {
			b.WriteByte(text[i])
			i++
		}
	}
	return b.String(), matched
}
