// Package identity derives stable, collision-resistant identifiers for graph
// nodes and edges. Identifiers are pure functions of their inputs: repeated
// runs and re-ingested snapshots converge on the same ids, with no counters
// or run-specific salts.
package identity

import (
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/opensanctions/graph/pkg/text"
)

// idRoot anchors the per-namespace UUID derivation. Changing it would change
// every opaque id ever issued.
var idRoot = uuid.MustParse("8e02a5ba-4e2b-5c0f-9b6e-2f1d5a7c9e41")

// An Assigner derives identifiers scoped by a dataset namespace. Two
// assigners with different prefixes can never produce colliding ids, even
// for identical natural keys.
type Assigner struct {
	prefix string
	ns     uuid.UUID
}

// New creates an assigner for the given namespace prefix. The prefix is
// slug-normalized; it must not be empty.
func New(prefix string) *Assigner {
	prefix = slugPart(prefix)
	return &Assigner{
		prefix: prefix,
		ns:     uuid.NewSHA1(idRoot, []byte(prefix)),
	}
}

// Prefix returns the normalized namespace prefix.
func (a *Assigner) Prefix() string {
	return a.prefix
}

// Slug derives a human-decodable identifier from a structured natural key
// (registry type, registration number, jurisdiction). Each part is cleaned,
// lowercased, and reduced to [a-z0-9-]; empty parts are dropped. Returns ""
// when no part survives, signalling that no natural key is available.
func (a *Assigner) Slug(parts ...string) string {
	kept := make([]string, 0, len(parts)+1)
	kept = append(kept, a.prefix)
	for _, part := range parts {
		if part = slugPart(part); part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 1 {
		return ""
	}
	return strings.Join(kept, "-")
}

// HashID derives an opaque identifier from a free-text natural key. Empty
// parts are dropped; if none survive, "" is returned. The hash is scoped by
// the assigner's namespace, so identical keys in different namespaces yield
// different ids.
func (a *Assigner) HashID(parts ...string) string {
	digest := a.ContentHash(parts...)
	if digest == "" {
		return ""
	}
	return a.prefix + "-" + digest
}

// ContentHash returns the bare hex digest of a free-text key, without the
// namespace prefix. Useful as a slug component for derived ids such as
// relationship keys.
func (a *Assigner) ContentHash(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(text.Clean(part))
		if part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	id := uuid.NewSHA1(a.ns, []byte(strings.Join(kept, "\x1f")))
	return hex.EncodeToString(id[:])
}

// Relationship derives the pure-function edge id for (kind, source, target,
// role). Safe to union across runs: the same edge always hashes to the same
// id.
func (a *Assigner) Relationship(kind, sourceID, targetID, role string) string {
	return a.Slug("rel", a.ContentHash(kind, sourceID, targetID, role))
}

// slugPart lowercases a key part and maps every run of non-alphanumeric
// characters to a single dash.
func slugPart(s string) string {
	s = strings.ToLower(text.Clean(s))
	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
		} else if !dash {
			b.WriteRune('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
