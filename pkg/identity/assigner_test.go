package identity

import (
	"strings"
	"testing"
)

func TestAssigner_Slug(t *testing.T) {
	asn := New("oc-companies-cy")

	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{
			name:  "structured key",
			parts: []string{"HE125617"},
			want:  "oc-companies-cy-he125617",
		},
		{
			name:  "multiple parts",
			parts: []string{"Hamburg", "HRB", "125617"},
			want:  "oc-companies-cy-hamburg-hrb-125617",
		},
		{
			name:  "messy part",
			parts: []string{" Sankt  Augustin/Bonn "},
			want:  "oc-companies-cy-sankt-augustin-bonn",
		},
		{
			name:  "empty parts dropped",
			parts: []string{"", "125617"},
			want:  "oc-companies-cy-125617",
		},
		{
			name:  "no surviving parts",
			parts: []string{"", "  ", "___"},
			want:  "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := asn.Slug(tc.parts...); got != tc.want {
				t.Errorf("Slug(%v) = %q, want %q", tc.parts, got, tc.want)
			}
		})
	}
}

func TestAssigner_Deterministic(t *testing.T) {
	first := New("de").HashID("org-1", "j. smith")
	second := New("de").HashID("org-1", "J.  Smith")

	if first == "" {
		t.Fatal("HashID should produce an id for a non-empty key")
	}
	if first != second {
		t.Errorf("equal keys (after normalization) must produce equal ids: %q != %q", first, second)
	}
}

func TestAssigner_NamespaceIsolation(t *testing.T) {
	key := []string{"HRB", "125617"}

	a := New("de")
	b := New("cy")
	if a.HashID(key...) == b.HashID(key...) {
		t.Error("distinct namespaces must not produce colliding hash ids")
	}
	if a.Slug(key...) == b.Slug(key...) {
		t.Error("distinct namespaces must not produce colliding slugs")
	}
}

func TestAssigner_DistinctKeys(t *testing.T) {
	asn := New("de")
	if asn.HashID("org-1", "j. smith") == asn.HashID("org-2", "j. smith") {
		t.Error("same name under different parents must not collide")
	}
}

func TestAssigner_HashIDEmptyKey(t *testing.T) {
	asn := New("md")
	if got := asn.HashID("", "  "); got != "" {
		t.Errorf("HashID with no surviving parts = %q, want empty", got)
	}
}

func TestAssigner_Relationship(t *testing.T) {
	asn := New("de")

	id := asn.Relationship("Directorship", "de-hrb-1", "de-officer-x", "Geschäftsführer")
	again := asn.Relationship("Directorship", "de-hrb-1", "de-officer-x", "Geschäftsführer")
	if id != again {
		t.Error("relationship ids must be pure functions of their inputs")
	}
	if !strings.HasPrefix(id, "de-rel-") {
		t.Errorf("relationship id %q should carry the namespace and rel marker", id)
	}

	other := asn.Relationship("Ownership", "de-hrb-1", "de-officer-x", "Geschäftsführer")
	if id == other {
		t.Error("different kinds must produce different edge ids")
	}
}
