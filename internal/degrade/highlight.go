package degrade

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/searchgate/searchgate/internal/domain"
)

// minHighlightTermLen filters out stop-word sized terms that would produce
// noisy snippets.
const minHighlightTermLen = 3

// EmulateHighlights wraps literal query-term matches in the configured
// fields with the pre/post markers. No stemming, no relevance-aware
// snippeting: this is a bounded literal-match emulation.
func EmulateHighlights(hits []domain.Hit, queryText string, spec domain.HighlightSpec) {
	terms := highlightTerms(queryText)
	if len(terms) == 0 || len(spec.Fields) == 0 {
		return
	}

	pre, post := spec.PreTag, spec.PostTag
	if pre == "" {
		pre = domain.DefaultPreTag
	}
	if post == "" {
		post = domain.DefaultPostTag
	}

	patterns := make([]*regexp.Regexp, 0, len(terms))
	for _, term := range terms {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		if err != nil {
			continue
		}
		patterns = append(patterns, re)
	}

	for i := range hits {
		if len(hits[i].Content) == 0 {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(hits[i].Content, &fields); err != nil {
			continue
		}
		for _, name := range spec.Fields {
			text, ok := fields[name].(string)
			if !ok {
				continue
			}
			snippet, matched := wrap(text, patterns, pre, post)
			if !matched {
				continue
			}
			if spec.MaxLength > 0 && len(snippet) > spec.MaxLength {
				snippet = snippet[:spec.MaxLength]
			}
			if hits[i].Highlights == nil {
				hits[i].Highlights = make(map[string][]string)
			}
			hits[i].Highlights[name] = append(hits[i].Highlights[name], snippet)
		}
	}
}

func wrap(text string, patterns []*regexp.Regexp, pre, post string) (string, bool) {
	matched := false
	out := text
	for _, re := range patterns {
		if !re.MatchString(out) {
			continue
		}
		matched = true
		out = re.ReplaceAllStringFunc(out, func(m string) string {
			return pre + m + post
		})
	}
	return out, matched
}

// highlightTerms extracts lowercase alphanumeric terms worth highlighting.
func highlightTerms(queryText string) []string {
	var terms []string
	for _, raw := range strings.Fields(queryText) {
		var b strings.Builder
		for _, r := range strings.ToLower(raw) {
			if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
				b.WriteRune(r)
			}
		}
		term := b.String()
		if len(term) >= minHighlightTermLen {
			terms = append(terms, term)
		}
	}
	return terms
}
