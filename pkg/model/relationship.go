package model

import "github.com/opensanctions/graph/pkg/text"

// RelKind classifies an edge between two entities.
type RelKind string

const (
	// RelDirectorship links an officer (source) to the organisation they
	// direct (target).
	RelDirectorship RelKind = "Directorship"

	// RelOwnership links an owner (source) to the asset they own (target).
	RelOwnership RelKind = "Ownership"
)

// Valid reports whether the kind is one of the closed set.
func (k RelKind) Valid() bool {
	return k == RelDirectorship || k == RelOwnership
}

// Relationship is a typed graph edge. The ID is a pure function of
// (kind, source, target, role), so re-deriving the same edge from re-ingested
// data yields the same identifier.
type Relationship struct {
	Kind       RelKind             `json:"kind"`
	ID         string              `json:"id"`
	SourceID   string              `json:"source_id"`
	TargetID   string              `json:"target_id"`
	Role       string              `json:"role,omitempty"`
	Properties map[string][]string `json:"properties,omitempty"`
}

// NewRelationship creates an edge of the given kind between two entity ids.
func NewRelationship(kind RelKind, sourceID, targetID, role string) *Relationship {
	return &Relationship{
		Kind:       kind,
		SourceID:   sourceID,
		TargetID:   targetID,
		Role:       text.CollapseSpaces(role),
		Properties: make(map[string][]string),
	}
}

// Add normalizes value and appends it under prop unless it is empty or
// already present.
func (r *Relationship) Add(prop, value string) bool {
	value = text.CollapseSpaces(value)
	if prop == "" || value == "" {
		return false
	}
	for _, existing := range r.Properties[prop] {
		if existing == value {
			return false
		}
	}
	r.Properties[prop] = append(r.Properties[prop], value)
	return true
}

// AddAll merges a canonical attribute set into the relationship.
func (r *Relationship) AddAll(attrs map[string][]string) {
	for prop, values := range attrs {
		for _, value := range values {
			r.Add(prop, value)
		}
	}
}
