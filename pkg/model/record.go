package model

import (
	"sort"
	"strconv"
	"strings"
)

// RawRecord is a source row: a mapping from field label to raw value.
// Fields are consumed destructively, so that any field left unread at the
// end of processing is detectable as unexpected input (schema drift).
type RawRecord struct {
	fields   map[string]any
	consumed map[string]struct{}
}

// NewRawRecord wraps a decoded source row. The map is not copied; the caller
// must not reuse it.
func NewRawRecord(fields map[string]any) *RawRecord {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &RawRecord{
		fields:   fields,
		consumed: make(map[string]struct{}),
	}
}

// Has reports whether the record still carries an unconsumed field.
func (r *RawRecord) Has(key string) bool {
	_, ok := r.fields[key]
	if !ok {
		return false
	}
	_, done := r.consumed[key]
	return !done
}

// Pop consumes a field and returns its value as a trimmed string. Null
// fields, absent fields, and already-consumed fields all yield "".
func (r *RawRecord) Pop(key string) string {
	return Stringify(r.PopAny(key))
}

// PopAny consumes a field and returns its raw decoded value, or nil.
func (r *RawRecord) PopAny(key string) any {
	if !r.Has(key) {
		return nil
	}
	r.consumed[key] = struct{}{}
	return r.fields[key]
}

// PopRecord consumes a field holding a nested object and wraps it as a
// RawRecord. Returns nil if the field is absent or not an object.
func (r *RawRecord) PopRecord(key string) *RawRecord {
	value, ok := r.PopAny(key).(map[string]any)
	if !ok {
		return nil
	}
	return NewRawRecord(value)
}

// PopList consumes a field holding a list of nested objects. Non-object
// elements are skipped.
func (r *RawRecord) PopList(key string) []*RawRecord {
	values, ok := r.PopAny(key).([]any)
	if !ok {
		return nil
	}
	records := make([]*RawRecord, 0, len(values))
	for _, value := range values {
		if fields, ok := value.(map[string]any); ok {
			records = append(records, NewRawRecord(fields))
		}
	}
	return records
}

// Discard consumes fields that are recognised but intentionally unused.
func (r *RawRecord) Discard(keys ...string) {
	for _, key := range keys {
		if _, ok := r.fields[key]; ok {
			r.consumed[key] = struct{}{}
		}
	}
}

// Leftover returns the unconsumed field labels, sorted.
func (r *RawRecord) Leftover() []string {
	var keys []string
	for key := range r.fields {
		if _, done := r.consumed[key]; !done {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Audit returns the unconsumed field labels that are not on the ignore list.
// A non-empty result is a schema-drift signal: the source carries fields the
// mapping tables do not anticipate.
func (r *RawRecord) Audit(ignore ...string) []string {
	ignored := make(map[string]struct{}, len(ignore))
	for _, key := range ignore {
		ignored[key] = struct{}{}
	}
	var keys []string
	for _, key := range r.Leftover() {
		if _, ok := ignored[key]; !ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the number of fields on the record, consumed or not.
func (r *RawRecord) Len() int {
	return len(r.fields)
}

// Stringify renders a decoded scalar as a trimmed string. Integers and
// floats keep their decimal form; nil and unsupported values yield "".
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		// JSON numbers decode as float64; render integral values without
		// a fractional part.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}
