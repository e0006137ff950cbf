// Package reference parses free-text company references of the German
// commercial register, of the form
//
//	HA Invest GmbH, Hamburg (Amtsgericht Hamburg HRB 125617).
//
// into structured name, locality, court, register type, and register number
// fields. An ordered list of grammar alternatives is tried most specific
// first; the first match wins. Inputs that match no grammar are reported as
// such, and callers fall back to treating the whole text as an opaque name.
package reference

import (
	"regexp"
	"strings"
	"sync"

	"github.com/opensanctions/graph/pkg/text"
)

// RegisterTypes is the closed set of register type tokens recognised in
// references: commercial register sections A and B, associations register,
// partnership register, and cooperatives register.
var RegisterTypes = []string{"HRA", "HRB", "VR", "PR", "GnR"}

// Reference holds the captured groups of a matched company reference.
// Casing is preserved from the source text.
type Reference struct {
	// Name is the company name preceding the reference.
	Name string

	// City is the locality after the name, when present.
	City string

	// Court is the seat of the registering court (the word following the
	// "...gericht" keyword).
	Court string

	// RegisterType is one of RegisterTypes.
	RegisterType string

	// RegisterNumber is the numeric register entry.
	RegisterNumber string

	// Summary is optional trailing free text, often a representation rule.
	Summary string
}

// RegistrationNumber renders the full registry key, e.g.
// "Hamburg HRB 125617".
func (r *Reference) RegistrationNumber() string {
	return text.Join(" ", r.Court, r.RegisterType, r.RegisterNumber)
}

// grammar is one alternative pattern, tried in order of registration.
type grammar struct {
	name string
	re   *regexp.Regexp
}

// The grammars are ordered most specific first: the variant with an explicit
// locality before the cityless variant. Keyword matching is
// case-insensitive; captured groups keep their original casing. New locale
// variants are appended, never inserted, so existing extractions stay
// stable.
var grammars = []grammar{
	{
		name: "name-city-court",
		re: regexp.MustCompile(
			`(?i)^(?P<name>.*),\s(?P<city>[\p{L}\p{N}_\s-]+)\s\((?:\p{L}+gericht)\s(?P<court>.+)\s(?P<reg_type>HRA|HRB|VR|PR|GnR)\s(?P<reg_nr>\d+)\),?\s?(?P<summary>.*)$`),
	},
	{
		name: "name-court",
		re: regexp.MustCompile(
			`(?i)^(?P<name>.*)\s\((?:\p{L}+gericht)\s(?P<court>.+)\s(?P<reg_type>HRA|HRB|VR|PR|GnR)\s(?P<reg_nr>\d+)\),?\s?(?P<summary>.*)$`),
	},
}

// match runs the grammars in order and returns the first successful parse.
func match(input string) *Reference {
	for _, g := range grammars {
		m := g.re.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		groups := make(map[string]string, len(m))
		for i, name := range g.re.SubexpNames() {
			if name != "" {
				groups[name] = m[i]
			}
		}
		ref := &Reference{
			Name:           text.CollapseSpaces(groups["name"]),
			City:           text.CollapseSpaces(groups["city"]),
			Court:          text.CollapseSpaces(groups["court"]),
			RegisterType:   groups["reg_type"],
			RegisterNumber: groups["reg_nr"],
			Summary:        cleanSummary(groups["summary"]),
		}
		return ref
	}
	return nil
}

// cleanSummary normalizes trailing free text; a bare terminating period is
// not a summary.
func cleanSummary(s string) string {
	s = text.CollapseSpaces(s)
	if strings.Trim(s, ".") == "" {
		return ""
	}
	return s
}

// An Extractor memoizes parse results per distinct input string. The same
// compound reference repeats across many records naming the same related
// party, so within a run the cache is unbounded; it does not persist across
// runs.
type Extractor struct {
	mu    sync.RWMutex
	cache map[string]*Reference
}

// NewExtractor creates an extractor with an empty memo table.
func NewExtractor() *Extractor {
	return &Extractor{cache: make(map[string]*Reference)}
}

// Extract parses input against the grammar list. The second return value is
// false when no grammar matched; callers then treat the input as an opaque
// name. Results (including misses) are memoized by the exact input string;
// callers receive their own copy and may mutate it freely.
func (e *Extractor) Extract(input string) (*Reference, bool) {
	e.mu.RLock()
	ref, seen := e.cache[input]
	e.mu.RUnlock()
	if !seen {
		ref = match(input)
		e.mu.Lock()
		e.cache[input] = ref
		e.mu.Unlock()
	}
	if ref == nil {
		return nil, false
	}
	out := *ref
	return &out, true
}

// Len returns the number of memoized inputs, including misses.
func (e *Extractor) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
