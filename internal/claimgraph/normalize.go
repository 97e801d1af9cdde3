package claimgraph

import (
	"sort"

	pstrings "lineageforge/pkg/platform/strings"
)

// NameTokens returns the sorted, deduplicated token set of all name-family
// claim values in claims.
func NameTokens(claims []Claim) []string {
	var tokens []string
	for _, c := range claims {
		if !c.Predicate.IsNameFamily() || c.ObjectValue == nil {
			continue
		}
		tokens = append(tokens, pstrings.Tokens(*c.ObjectValue)...)
	}
	tokens = pstrings.DedupeLower(tokens)
	sort.Strings(tokens)
	return tokens
}

// NormalizePlace folds a free-text place name for comparison.
func NormalizePlace(s string) string {
	return pstrings.CollapseSpace(pstrings.StripPunctuation(s))
}

// NormalizeValue folds a literal claim value for equality checks. Dates are
// rendered canonically so "2 JAN 1900" and "1900-01-02" compare equal.
func NormalizeValue(p Predicate, v string) string {
	if p.IsDated() {
		if d, ok := ParseDate(v); ok {
			return d.Canonical()
		}
	}
	return pstrings.CollapseSpace(v)
}
