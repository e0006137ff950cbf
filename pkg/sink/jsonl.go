// Package sink provides downstream consumers for emitted graph records:
// line-delimited JSON for piping into other tools, and a SQLite database for
// local inspection and unioning across runs.
package sink

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/opensanctions/graph/pkg/model"
)

// envelope wraps each emitted record with its record type, so the two
// streams can share one file.
type envelope struct {
	Type         string              `json:"type"`
	Entity       *model.Entity       `json:"entity,omitempty"`
	Relationship *model.Relationship `json:"relationship,omitempty"`
}

// JSONL writes entities and relationships as line-delimited JSON.
type JSONL struct {
	enc *json.Encoder
}

// NewJSONL creates a sink writing to w.
func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{enc: json.NewEncoder(w)}
}

// WriteEntity writes one entity line.
func (s *JSONL) WriteEntity(entity *model.Entity) error {
	if err := s.enc.Encode(envelope{Type: "entity", Entity: entity}); err != nil {
		return fmt.Errorf("encoding entity %s: %w", entity.ID, err)
	}
	return nil
}

// WriteRelationship writes one relationship line.
func (s *JSONL) WriteRelationship(rel *model.Relationship) error {
	if err := s.enc.Encode(envelope{Type: "relationship", Relationship: rel}); err != nil {
		return fmt.Errorf("encoding relationship %s: %w", rel.ID, err)
	}
	return nil
}
