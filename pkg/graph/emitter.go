// Package graph assembles typed nodes and edges into an idempotent run
// buffer and forwards them to a downstream sink. Repeated emission of the
// same id with an identical property set is suppressed; emission with new
// properties augments the buffered entity and forwards the merged node.
package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/opensanctions/graph/pkg/model"
)

// A Sink consumes fully formed nodes and edges. The serialization format,
// transport, and persistence layout are the sink's concern.
type Sink interface {
	WriteEntity(entity *model.Entity) error
	WriteRelationship(rel *model.Relationship) error
}

// Stats counts what an emitter has forwarded and suppressed during a run.
type Stats struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`

	// Merged counts entity emissions that augmented an already-buffered
	// entity with new properties.
	Merged int `json:"merged"`

	// Suppressed counts emissions that added nothing new and were not
	// forwarded again.
	Suppressed int `json:"suppressed"`
}

// An Emitter is the single funnel between the dataset pipelines and a sink.
// It tracks every id emitted during the run, merges repeated entity
// emissions, and enforces that a relationship's endpoints were emitted
// before the relationship itself.
type Emitter struct {
	mu sync.Mutex

	sink Sink

	// entities is the run buffer: merged view of everything emitted
	// under each id.
	entities map[string]*model.Entity

	// forwarded maps entity id to the property fingerprint last sent to
	// the sink, for duplicate suppression.
	forwarded map[string]string

	// relationships records edge ids already forwarded.
	relationships map[string]struct{}

	stats Stats
}

// NewEmitter creates an emitter forwarding to sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{
		sink:          sink,
		entities:      make(map[string]*model.Entity),
		forwarded:     make(map[string]string),
		relationships: make(map[string]struct{}),
	}
}

// EmitEntity merges the entity into the run buffer and forwards the merged
// node unless an identical property set was already forwarded under the
// same id.
func (em *Emitter) EmitEntity(entity *model.Entity) error {
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	if entity.ID == "" {
		return fmt.Errorf("entity %s: %w", entity.Schema, model.ErrMissingNaturalKey)
	}
	if !entity.Schema.Valid() {
		return fmt.Errorf("entity %s has unknown schema %q", entity.ID, entity.Schema)
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	merged, buffered := em.entities[entity.ID]
	if !buffered {
		merged = entity.Clone()
		em.entities[entity.ID] = merged
	} else {
		merged.AddAll(entity.Properties)
	}

	fp := propertyFingerprint(merged.Properties)
	if previous, sent := em.forwarded[entity.ID]; sent {
		if previous == fp {
			em.stats.Suppressed++
			return nil
		}
		em.stats.Merged++
	} else {
		em.stats.Entities++
	}

	if err := em.sink.WriteEntity(merged.Clone()); err != nil {
		return fmt.Errorf("writing entity %s: %w", entity.ID, err)
	}
	em.forwarded[entity.ID] = fp
	return nil
}

// EmitRelationship forwards an edge. Both endpoints must have been emitted
// earlier in the run; violating that ordering is a programming error in the
// calling pipeline, not a data problem. Re-emitting an edge id is suppressed
// (edge ids are pure functions of their content, so a repeat carries nothing
// new).
func (em *Emitter) EmitRelationship(rel *model.Relationship) error {
	if rel == nil {
		return fmt.Errorf("relationship cannot be nil")
	}
	if rel.ID == "" {
		return fmt.Errorf("relationship %s: %w", rel.Kind, model.ErrMissingNaturalKey)
	}
	if !rel.Kind.Valid() {
		return fmt.Errorf("relationship %s has unknown kind %q", rel.ID, rel.Kind)
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	if _, ok := em.entities[rel.SourceID]; !ok {
		return fmt.Errorf("relationship %s: source %s not emitted", rel.ID, rel.SourceID)
	}
	if _, ok := em.entities[rel.TargetID]; !ok {
		return fmt.Errorf("relationship %s: target %s not emitted", rel.ID, rel.TargetID)
	}

	if _, seen := em.relationships[rel.ID]; seen {
		em.stats.Suppressed++
		return nil
	}

	if err := em.sink.WriteRelationship(rel); err != nil {
		return fmt.Errorf("writing relationship %s: %w", rel.ID, err)
	}
	em.relationships[rel.ID] = struct{}{}
	em.stats.Relationships++
	return nil
}

// Seen reports whether an entity id has been emitted during this run.
func (em *Emitter) Seen(id string) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	_, ok := em.entities[id]
	return ok
}

// Entity returns the merged run-buffer view of an entity.
func (em *Emitter) Entity(id string) (*model.Entity, bool) {
	em.mu.Lock()
	defer em.mu.Unlock()
	entity, ok := em.entities[id]
	if !ok {
		return nil, false
	}
	return entity.Clone(), true
}

// Stats returns the emission counters.
func (em *Emitter) Stats() Stats {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.stats
}

// propertyFingerprint renders a property set in canonical order so that two
// equal sets compare equal as strings. Values are sorted per property; the
// stored insertion order is not significant. Every component is length-
// prefixed, so values containing the joiner characters cannot collide with
// differently-shaped sets.
func propertyFingerprint(properties map[string][]string) string {
	props := make([]string, 0, len(properties))
	for prop, values := range properties {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		var b strings.Builder
		b.WriteString(strconv.Itoa(len(prop)))
		b.WriteByte(':')
		b.WriteString(prop)
		for _, value := range sorted {
			b.WriteByte('=')
			b.WriteString(strconv.Itoa(len(value)))
			b.WriteByte(':')
			b.WriteString(value)
		}
		props = append(props, b.String())
	}
	sort.Strings(props)
	return strings.Join(props, ";")
}
