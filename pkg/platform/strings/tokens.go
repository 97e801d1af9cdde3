// Package strings holds the text folding used to compare names and places.
package strings

import (
	"sort"
	"strings"
	"unicode"
)

// DedupeLower trims and lowercases values, dropping empties and repeats.
// First-seen order is kept.
func DedupeLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// StripPunctuation drops punctuation and symbol runes.
//
//	StripPunctuation("Smith, John (Jr.)") == "Smith John Jr"
func StripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)
}

// CollapseSpace lowercases s and collapses whitespace runs to single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tokens returns the sorted set of case-folded words in s.
//
//	Tokens("John  SMITH, john") == []string{"john", "smith"}
func Tokens(s string) []string {
	out := DedupeLower(strings.Fields(StripPunctuation(s)))
	sort.Strings(out)
	return out
}
