// Package text provides string normalization helpers for noisy registry data:
// whitespace collapsing, placeholder stripping, multi-part joining, and a
// name fingerprint used to derive stable keys from free-text names.
package text

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer decomposes characters and strips combining marks, so that
// "Müller" and "Muller" fingerprint identically.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CollapseSpaces collapses runs of whitespace into a single space and trims
// the result. Returns "" for empty or whitespace-only input.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Clean strips placeholder characters (underscores used as blank fillers in
// registry extracts), collapses whitespace, and trims. Returns "" when
// nothing meaningful survives.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "_", "")
	return CollapseSpaces(s)
}

// Join filters out empty parts and joins the survivors with sep. Parts are
// space-collapsed before the empty check. Returns "" if no parts survive.
func Join(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = CollapseSpaces(part)
		if part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, sep)
}

// Fingerprint reduces a name to a stable comparison key: diacritics folded,
// lowercased, punctuation replaced by spaces, tokens deduplicated and sorted.
// Returns "" when no token survives.
func Fingerprint(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	if len(tokens) == 0 {
		return ""
	}
	sort.Strings(tokens)

	unique := tokens[:1]
	for _, token := range tokens[1:] {
		if token != unique[len(unique)-1] {
			unique = append(unique, token)
		}
	}
	return strings.Join(unique, " ")
}
