package grading

import "strings"

func isKeywordSep(r rune) bool {
	switch r {
	case ',', ';', '，', '；', '\n', '\r':
		return true
	}
	return false
}

// ParseKeywords splits an authored keyword string on ASCII and full-width
// commas and semicolons and on newlines.
func ParseKeywords(s string) []string {
	return NormalizeKeywords(strings.FieldsFunc(s, isKeywordSep))
}

// NormalizeKeywords trims entries, drops empties and removes duplicates
// (ignoring case and width) while keeping first-seen order. Entries that
// still contain separators are split further.
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		for _, part := range strings.FieldsFunc(raw, isKeywordSep) {
			k := strings.TrimSpace(part)
			if k == "" {
				continue
			}
			key := fold(k)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
