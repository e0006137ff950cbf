// Package mapping translates source-specific field names and codes into the
// canonical property vocabulary. Mapping tables are declared as specs,
// either in code or in YAML files loaded through a Registry, and applied to
// raw records with destructive field consumption so that schema drift is
// detectable afterwards.
package mapping

import (
	"fmt"
	"time"

	"github.com/opensanctions/graph/pkg/model"
)

// FieldType selects the coercion applied to a mapped value.
type FieldType string

const (
	// FieldString passes the value through untouched (beyond trimming).
	FieldString FieldType = ""

	// FieldDate coerces a day/month/year date into ISO form.
	FieldDate FieldType = "date"

	// FieldCode translates a coded enumeration value through the field's
	// code table.
	FieldCode FieldType = "code"
)

// Field maps one source field label onto a canonical property.
type Field struct {
	// Source is the field label in the raw record.
	Source string `yaml:"source"`

	// Property is the canonical property name to write.
	Property string `yaml:"property"`

	// Type selects coercion; empty means plain string.
	Type FieldType `yaml:"type,omitempty"`

	// Codes is the enumeration table for FieldCode fields.
	Codes map[string]string `yaml:"codes,omitempty"`

	// Required marks fields whose coercion failure is fatal for the
	// record (the record is skipped, the run continues).
	Required bool `yaml:"required,omitempty"`
}

// Spec is a mapping table for one source record shape.
type Spec struct {
	Name    string   `yaml:"name"`
	Dataset string   `yaml:"dataset"`
	Version string   `yaml:"version"`
	Fields  []Field  `yaml:"fields"`
	Ignore  []string `yaml:"ignore,omitempty"`
}

// Validate checks that the spec is well formed.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("mapping spec name is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("mapping spec %q has no fields", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for i, field := range s.Fields {
		if field.Source == "" {
			return fmt.Errorf("mapping spec %q: field %d has no source", s.Name, i)
		}
		if field.Property == "" {
			return fmt.Errorf("mapping spec %q: field %q has no property", s.Name, field.Source)
		}
		if field.Type == FieldCode && len(field.Codes) == 0 {
			return fmt.Errorf("mapping spec %q: code field %q has no code table", s.Name, field.Source)
		}
		if _, dup := seen[field.Source]; dup {
			return fmt.Errorf("mapping spec %q: duplicate source field %q", s.Name, field.Source)
		}
		seen[field.Source] = struct{}{}
	}
	return nil
}

// Result is the outcome of applying a spec to one record.
type Result struct {
	// Attributes holds the canonical property values.
	Attributes map[string][]string

	// UnknownCodes lists coded values that had no table entry, as
	// "source=value" pairs. Non-fatal; the offending value is dropped.
	UnknownCodes []string
}

// Apply consumes every mapped field present on the record and returns the
// canonical attribute set. A coercion failure on a required field aborts the
// record with an error; on an optional field, the value is dropped and
// reported in the result.
func (s *Spec) Apply(rec *model.RawRecord) (*Result, error) {
	res := &Result{Attributes: make(map[string][]string)}
	for _, field := range s.Fields {
		if !rec.Has(field.Source) {
			continue
		}
		raw := rec.Pop(field.Source)
		if raw == "" {
			continue
		}
		value, err := coerce(field, raw)
		if err != nil {
			if field.Required {
				return nil, fmt.Errorf("field %q: %w", field.Source, err)
			}
			res.UnknownCodes = append(res.UnknownCodes, fmt.Sprintf("%s=%s", field.Source, raw))
			continue
		}
		if value != "" {
			res.Attributes[field.Property] = append(res.Attributes[field.Property], value)
		}
	}
	return res, nil
}

// Audit consumes nothing and returns the record's unmapped leftover fields
// after the spec's ignore list is applied.
func (s *Spec) Audit(rec *model.RawRecord) []string {
	return rec.Audit(s.Ignore...)
}

func coerce(field Field, raw string) (string, error) {
	switch field.Type {
	case FieldString:
		return raw, nil
	case FieldDate:
		return ParseDate(raw)
	case FieldCode:
		mapped, ok := field.Codes[raw]
		if !ok {
			return "", fmt.Errorf("unknown code %q", raw)
		}
		return mapped, nil
	}
	return "", fmt.Errorf("unknown field type %q", field.Type)
}

// dateLayout is the day/month/year form used by the registry extracts.
// Single-digit reference values accept both padded and unpadded input.
const dateLayout = "2/1/2006"

// ParseDate coerces a dd/mm/yyyy date into ISO yyyy-mm-dd form. Empty input
// yields "".
func ParseDate(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return "", fmt.Errorf("parsing date %q: %w", raw, err)
	}
	return parsed.Format("2006-01-02"), nil
}
