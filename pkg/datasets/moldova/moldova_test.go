package moldova

import (
	"io"
	"testing"

	"github.com/opensanctions/graph/pkg/datasets"
	"github.com/opensanctions/graph/pkg/graph"
	"github.com/opensanctions/graph/pkg/identity"
	"github.com/opensanctions/graph/pkg/model"
)

type sliceReader struct {
	rows []map[string]any
	pos  int
}

func (r *sliceReader) Next() (*model.RawRecord, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	rec := model.NewRawRecord(r.rows[r.pos])
	r.pos++
	return rec, nil
}

type memSink struct {
	entities      []*model.Entity
	relationships []*model.Relationship
}

func (s *memSink) WriteEntity(entity *model.Entity) error {
	s.entities = append(s.entities, entity)
	return nil
}

func (s *memSink) WriteRelationship(rel *model.Relationship) error {
	s.relationships = append(s.relationships, rel)
	return nil
}

func newTestContext() (*datasets.Context, *memSink) {
	sink := &memSink{}
	rc := datasets.NewContext(graph.NewEmitter(sink), identity.New(Meta.Prefix), nil, nil)
	return rc, sink
}

func parse(t *testing.T, rows []map[string]any) (*datasets.Context, *memSink) {
	t.Helper()
	rc, sink := newTestContext()
	if err := ParseCompanies(rc, &sliceReader{rows: rows}); err != nil {
		t.Fatalf("ParseCompanies() error = %v", err)
	}
	return rc, sink
}

func relByKind(rels []*model.Relationship, kind model.RelKind) []*model.Relationship {
	var out []*model.Relationship
	for _, rel := range rels {
		if rel.Kind == kind {
			out = append(out, rel)
		}
	}
	return out
}

func TestParseCompanies(t *testing.T) {
	_, sink := parse(t, []map[string]any{{
		"IDNO/ Cod fiscal":              "1003600012345",
		"Denumirea completă":            `S.C. "MOLDOVA-AGRO" S.R.L.`,
		"Data înregistrării":            "1994-03-21",
		"Data lichidării":               nil,
		"Adresa":                        "mun. Chișinău, str. Ștefan cel Mare 1",
		"Forma org./jurid.":             "Societate cu răspundere limitată",
		"Lista conducătorilor":          "MUNTEANU OLGA [Administrator], CEBAN ION [Contabil-șef]",
		"Lista fondatorilor":            "POPESCU VASILE (50%), ROTARU ANA (50%)",
		"Lista beneficiarilor efectivi": "POPESCU VASILE (MD)",
	}})

	company := sink.entities[0]
	if company.ID != "oc-companies-md-1003600012345" {
		t.Errorf("ID = %q, want oc-companies-md-1003600012345", company.ID)
	}
	checks := map[string]string{
		"name":               `S.C. "MOLDOVA-AGRO" S.R.L.`,
		"incorporationDate":  "1994-03-21",
		"jurisdiction":       "md",
		"address":            "mun. Chișinău, str. Ștefan cel Mare 1",
		"legalForm":          "Societate cu răspundere limitată",
		"registrationNumber": "1003600012345",
	}
	for prop, want := range checks {
		if got := company.First(prop); got != want {
			t.Errorf("First(%q) = %q, want %q", prop, got, want)
		}
	}

	// 1 company + 2 directors + 2 founders, plus one re-emission: the
	// beneficial owner merges into the founder of the same name and the
	// augmented node (now carrying a country) is forwarded again.
	if len(sink.entities) != 6 {
		t.Fatalf("emitted %d entities, want 6", len(sink.entities))
	}
	merged := sink.entities[5]
	if merged.ID != sink.entities[3].ID {
		t.Errorf("re-emission id = %q, want founder id %q", merged.ID, sink.entities[3].ID)
	}
	if got := merged.First("country"); got != "MD" {
		t.Errorf("merged owner country = %q, want MD", got)
	}

	dships := relByKind(sink.relationships, model.RelDirectorship)
	if len(dships) != 2 {
		t.Fatalf("emitted %d directorships, want 2", len(dships))
	}
	if dships[0].Role != "Administrator" || dships[1].Role != "Contabil-șef" {
		t.Errorf("directorship roles = %q, %q", dships[0].Role, dships[1].Role)
	}
	if dships[0].TargetID != company.ID {
		t.Errorf("directorship TargetID = %q, want company id", dships[0].TargetID)
	}

	// 2 founder edges + 1 beneficial-owner edge; the owner edge differs
	// from the founder edge by role.
	owns := relByKind(sink.relationships, model.RelOwnership)
	if len(owns) != 3 {
		t.Fatalf("emitted %d ownerships, want 3", len(owns))
	}
	if owns[0].Role != "50%" {
		t.Errorf("founder edge role = %q, want 50%%", owns[0].Role)
	}
	if owns[2].Role != ownerRole {
		t.Errorf("owner edge role = %q, want %q", owns[2].Role, ownerRole)
	}
	if owns[2].SourceID != owns[0].SourceID {
		t.Errorf("beneficial owner should reuse the founder node id")
	}
}

func TestParseCompaniesOwnerCountry(t *testing.T) {
	_, sink := parse(t, []map[string]any{{
		"IDNO/ Cod fiscal":              "1017600000001",
		"Denumirea completă":            "EXEMPLU SRL",
		"Lista beneficiarilor efectivi": "IVANOV PETR (RU)",
	}})
	owner := sink.entities[1]
	if got := owner.First("country"); got != "RU" {
		t.Errorf("owner country = %q, want RU", got)
	}
	if got := owner.First("name"); got != "IVANOV PETR" {
		t.Errorf("owner name = %q", got)
	}
}

func TestParseCompaniesHashFallback(t *testing.T) {
	rows := []map[string]any{{
		"IDNO/ Cod fiscal":   nil,
		"Denumirea completă": "FARA IDNO SRL",
		"Adresa":             "or. Bălți",
	}}
	_, sinkA := parse(t, rows)
	_, sinkB := parse(t, []map[string]any{{
		"IDNO/ Cod fiscal":   nil,
		"Denumirea completă": "FARA IDNO SRL",
		"Adresa":             "or. Bălți",
	}})

	if len(sinkA.entities) != 1 {
		t.Fatalf("emitted %d entities, want 1", len(sinkA.entities))
	}
	company := sinkA.entities[0]
	if company.ID == "" {
		t.Fatal("fallback id is empty")
	}
	if company.ID != sinkB.entities[0].ID {
		t.Errorf("fallback id not stable: %q vs %q", company.ID, sinkB.entities[0].ID)
	}
	if got := company.First("name"); got != "FARA IDNO SRL" {
		t.Errorf("name = %q", got)
	}
}

func TestParseCompaniesNoKeySkipped(t *testing.T) {
	rc, sink := parse(t, []map[string]any{{
		"IDNO/ Cod fiscal":   nil,
		"Denumirea completă": nil,
		"Adresa":             nil,
	}})
	if len(sink.entities) != 0 {
		t.Errorf("emitted %d entities, want 0", len(sink.entities))
	}
	if stats := rc.Stats(); stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
}

func TestParseCompaniesNumericListWarns(t *testing.T) {
	rc, sink := parse(t, []map[string]any{{
		"IDNO/ Cod fiscal":     "1003600054321",
		"Denumirea completă":   "TOTAL ROW SRL",
		"Lista fondatorilor":   float64(218508),
		"Lista conducătorilor": "MUNTEANU OLGA [Administrator]",
	}})
	// The company row itself survives; only the malformed list is dropped.
	if len(sink.entities) != 2 {
		t.Errorf("emitted %d entities, want 2", len(sink.entities))
	}
	if stats := rc.Stats(); stats.Warnings != 1 {
		t.Errorf("Warnings = %d, want 1", stats.Warnings)
	}
}
