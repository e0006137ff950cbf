package graph

import (
	"errors"
	"testing"

	"github.com/opensanctions/graph/pkg/model"
)

// recordingSink captures everything forwarded by the emitter, in order.
type recordingSink struct {
	entities      []*model.Entity
	relationships []*model.Relationship
}

func (s *recordingSink) WriteEntity(entity *model.Entity) error {
	s.entities = append(s.entities, entity)
	return nil
}

func (s *recordingSink) WriteRelationship(rel *model.Relationship) error {
	s.relationships = append(s.relationships, rel)
	return nil
}

func makeCompany(id string) *model.Entity {
	entity := model.NewEntity(model.SchemaOrganization)
	entity.ID = id
	entity.Add("name", "Acme Ltd")
	return entity
}

func TestEmitter_Entity(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink)

	if err := em.EmitEntity(makeCompany("cy-he1")); err != nil {
		t.Fatalf("EmitEntity() error = %v", err)
	}
	if !em.Seen("cy-he1") {
		t.Error("Seen() should report the emitted id")
	}
	if len(sink.entities) != 1 {
		t.Fatalf("sink received %d entities, want 1", len(sink.entities))
	}
}

func TestEmitter_DuplicateSuppression(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink)

	if err := em.EmitEntity(makeCompany("cy-he1")); err != nil {
		t.Fatal(err)
	}
	// Same id, identical property set: not forwarded again.
	if err := em.EmitEntity(makeCompany("cy-he1")); err != nil {
		t.Fatal(err)
	}
	if len(sink.entities) != 1 {
		t.Errorf("identical re-emission should be suppressed, sink got %d", len(sink.entities))
	}

	// Same id with a new property: merged view forwarded.
	augmented := makeCompany("cy-he1")
	augmented.Add("address", "Nicosia")
	if err := em.EmitEntity(augmented); err != nil {
		t.Fatal(err)
	}
	if len(sink.entities) != 2 {
		t.Fatalf("augmenting emission should forward, sink got %d", len(sink.entities))
	}
	forwarded := sink.entities[1]
	if forwarded.First("address") != "Nicosia" || forwarded.First("name") != "Acme Ltd" {
		t.Errorf("forwarded entity should be the merged view, got %v", forwarded.Properties)
	}

	stats := em.Stats()
	if stats.Entities != 1 || stats.Merged != 1 || stats.Suppressed != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestEmitter_MergeIsUnion(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink)

	first := makeCompany("cy-he1")
	first.Add("registrationNumber", "HE1")
	if err := em.EmitEntity(first); err != nil {
		t.Fatal(err)
	}

	second := makeCompany("cy-he1")
	second.Add("registrationNumber", "C1")
	if err := em.EmitEntity(second); err != nil {
		t.Fatal(err)
	}

	merged, ok := em.Entity("cy-he1")
	if !ok {
		t.Fatal("entity should be buffered")
	}
	if got := merged.Get("registrationNumber"); len(got) != 2 {
		t.Errorf("merge should union values, got %v", got)
	}
}

func TestEmitter_MissingNaturalKey(t *testing.T) {
	em := NewEmitter(&recordingSink{})

	entity := model.NewEntity(model.SchemaOrganization)
	err := em.EmitEntity(entity)
	if !errors.Is(err, model.ErrMissingNaturalKey) {
		t.Errorf("EmitEntity without id: error = %v, want ErrMissingNaturalKey", err)
	}

	rel := model.NewRelationship(model.RelDirectorship, "a", "b", "")
	err = em.EmitRelationship(rel)
	if !errors.Is(err, model.ErrMissingNaturalKey) {
		t.Errorf("EmitRelationship without id: error = %v, want ErrMissingNaturalKey", err)
	}
}

func TestEmitter_InvalidSchema(t *testing.T) {
	em := NewEmitter(&recordingSink{})
	entity := model.NewEntity(model.Schema("Company"))
	entity.ID = "x"
	if err := em.EmitEntity(entity); err == nil {
		t.Error("unknown schema should be rejected")
	}
}

func TestEmitter_RelationshipOrdering(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink)

	rel := model.NewRelationship(model.RelDirectorship, "officer-1", "cy-he1", "Director")
	rel.ID = "rel-1"
	if err := em.EmitRelationship(rel); err == nil {
		t.Error("relationship with unemitted endpoints should be rejected")
	}

	if err := em.EmitEntity(makeCompany("cy-he1")); err != nil {
		t.Fatal(err)
	}
	officer := model.NewEntity(model.SchemaPerson)
	officer.ID = "officer-1"
	officer.Add("name", "J. Smith")
	if err := em.EmitEntity(officer); err != nil {
		t.Fatal(err)
	}

	if err := em.EmitRelationship(rel); err != nil {
		t.Fatalf("EmitRelationship() error = %v", err)
	}
	if len(sink.relationships) != 1 {
		t.Fatalf("sink received %d relationships, want 1", len(sink.relationships))
	}
}

func TestEmitter_IdempotentRelationship(t *testing.T) {
	sink := &recordingSink{}
	em := NewEmitter(sink)

	if err := em.EmitEntity(makeCompany("cy-he1")); err != nil {
		t.Fatal(err)
	}
	officer := model.NewEntity(model.SchemaLegalEntity)
	officer.ID = "officer-1"
	officer.Add("name", "J. Smith")
	if err := em.EmitEntity(officer); err != nil {
		t.Fatal(err)
	}

	rel := model.NewRelationship(model.RelDirectorship, "officer-1", "cy-he1", "Director")
	rel.ID = "rel-1"
	for i := 0; i < 3; i++ {
		if err := em.EmitRelationship(rel); err != nil {
			t.Fatal(err)
		}
	}

	if len(sink.relationships) != 1 {
		t.Errorf("re-emitting the same edge id should be suppressed, sink got %d", len(sink.relationships))
	}
	if em.Stats().Relationships != 1 {
		t.Errorf("Stats().Relationships = %d, want 1", em.Stats().Relationships)
	}
}

func TestPropertyFingerprint_OrderIndependent(t *testing.T) {
	a := map[string][]string{"name": {"x", "y"}, "address": {"z"}}
	b := map[string][]string{"address": {"z"}, "name": {"y", "x"}}
	if propertyFingerprint(a) != propertyFingerprint(b) {
		t.Error("fingerprint must not depend on insertion order")
	}

	c := map[string][]string{"name": {"x"}, "address": {"z"}}
	if propertyFingerprint(a) == propertyFingerprint(c) {
		t.Error("different property sets must fingerprint differently")
	}
}

func TestPropertyFingerprint_JoinerValues(t *testing.T) {
	split := map[string][]string{"name": {"a", "b"}}
	joined := map[string][]string{"name": {"a|b"}}
	if propertyFingerprint(split) == propertyFingerprint(joined) {
		t.Error("values containing the joiner must not collide with split values")
	}

	shifted := map[string][]string{"name=1": {"a"}}
	plain := map[string][]string{"name": {"1:a"}}
	if propertyFingerprint(shifted) != propertyFingerprint(shifted) {
		t.Error("fingerprint must be stable")
	}
	if propertyFingerprint(shifted) == propertyFingerprint(plain) {
		t.Error("property-name boundary must not shift into the value")
	}
}
