// Package model defines the canonical entity-relationship vocabulary emitted
// by the dataset pipelines: typed nodes, typed edges, and the raw source
// records they are derived from.
package model

import (
	"errors"
	"sort"

	"github.com/opensanctions/graph/pkg/text"
)

// Schema classifies an entity node. The set is closed: pipelines map every
// source record onto one of these three kinds.
type Schema string

const (
	// SchemaOrganization covers registered companies and other organisations.
	SchemaOrganization Schema = "Organization"

	// SchemaPerson covers natural persons.
	SchemaPerson Schema = "Person"

	// SchemaLegalEntity is the unspecified fallback when a source does not
	// say whether a party is a person or an organisation.
	SchemaLegalEntity Schema = "LegalEntity"
)

// Valid reports whether the schema is one of the closed set.
func (s Schema) Valid() bool {
	switch s {
	case SchemaOrganization, SchemaPerson, SchemaLegalEntity:
		return true
	}
	return false
}

// ErrMissingNaturalKey is returned when a record carries too few identifying
// fields to derive any stable identifier.
var ErrMissingNaturalKey = errors.New("no natural key available")

// Entity is a typed graph node. Properties map canonical property names to
// one or more values; duplicate values are merged on insertion and insertion
// order is not significant.
type Entity struct {
	Schema     Schema              `json:"schema"`
	ID         string              `json:"id"`
	Properties map[string][]string `json:"properties"`
}

// NewEntity creates an empty entity of the given schema.
func NewEntity(schema Schema) *Entity {
	return &Entity{
		Schema:     schema,
		Properties: make(map[string][]string),
	}
}

// Add normalizes value and appends it under prop unless it is empty or
// already present. Reports whether a new value was stored.
func (e *Entity) Add(prop, value string) bool {
	value = text.CollapseSpaces(value)
	if prop == "" || value == "" {
		return false
	}
	for _, existing := range e.Properties[prop] {
		if existing == value {
			return false
		}
	}
	e.Properties[prop] = append(e.Properties[prop], value)
	return true
}

// AddAll merges a canonical attribute set into the entity.
func (e *Entity) AddAll(attrs map[string][]string) {
	for prop, values := range attrs {
		for _, value := range values {
			e.Add(prop, value)
		}
	}
}

// Get returns the values stored under prop, or nil.
func (e *Entity) Get(prop string) []string {
	return e.Properties[prop]
}

// First returns the first value stored under prop, or "".
func (e *Entity) First(prop string) string {
	if values := e.Properties[prop]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// PropertyNames returns the property names present on the entity, sorted.
func (e *Entity) PropertyNames() []string {
	names := make([]string, 0, len(e.Properties))
	for name := range e.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	clone := &Entity{
		Schema:     e.Schema,
		ID:         e.ID,
		Properties: make(map[string][]string, len(e.Properties)),
	}
	for prop, values := range e.Properties {
		clone.Properties[prop] = append([]string(nil), values...)
	}
	return clone
}
