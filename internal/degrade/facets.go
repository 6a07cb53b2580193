package degrade

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/searchgate/searchgate/internal/domain"
)

// EmulateFacets computes value-frequency counts over the returned hits for
// the declared facet fields. The counts cover only the retrieved page, not
// the full corpus; callers see that through the FacetsApproximate flag.
func EmulateFacets(hits []domain.Hit, facetFields []string) map[string][]domain.FacetCount {
	if len(facetFields) == 0 {
		return nil
	}
	out := make(map[string][]domain.FacetCount, len(facetFields))
	for _, field := range facetFields {
		counts := make(map[string]int)
		for _, hit := range hits {
			if len(hit.Content) == 0 {
				continue
			}
			var fields map[string]any
			if err := json.Unmarshal(hit.Content, &fields); err != nil {
				continue
			}
			for _, v := range facetStrings(fields[field]) {
				counts[v]++
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
	if len(out) == 0 {
		return nil
	}
	return out
}

// facetStrings flattens a field value into countable strings. Array fields
// contribute one count per element.
func facetStrings(v any) []string {
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
			out = append(out, facetStrings(item)...)
		}
		return out
	}
	return nil
}
