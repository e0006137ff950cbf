// Package compound splits delimited multi-value registry fields (a single
// string encoding several officers or owners, each with an optional trailing
// tag) into ordered sub-records.
package compound

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// minBodyLength is the shortest trimmed body accepted as a real sub-record.
// Shorter fragments are noise, typically the empty tail after a terminal
// separator.
const minBodyLength = 3

// ErrNotText is returned when a compound field holds a non-string value,
// such as a stray number from a malformed spreadsheet row. Callers log a
// warning and process the record with zero sub-records.
var ErrNotText = errors.New("compound field is not text")

// SubRecord is one fragment of a compound field: an entity name or
// description, plus the optional trailing tag (role, percentage, or country)
// that was bracketed after it. Tag is "" when no tag was present.
type SubRecord struct {
	Body string
	Tag  string
}

// Decompose splits a compound field on itemSep and extracts the trailing
// tag delimited by tagOpen/tagClose from each fragment. The tag is taken at
// the last occurrence of tagOpen, since names may themselves contain the
// opening character. Fragments with bodies shorter than three characters
// are dropped silently.
//
// The field value is passed as decoded (any) because malformed rows can put
// a number where text is expected; such values yield (nil, ErrNotText).
// A nil value yields (nil, nil).
func Decompose(value any, itemSep, tagOpen, tagClose string) ([]SubRecord, error) {
	if value == nil {
		return nil, nil
	}
	field, ok := value.(string)
	if !ok {
		return nil, ErrNotText
	}

	var subs []SubRecord
	for _, fragment := range strings.Split(field, itemSep) {
		fragment = strings.ReplaceAll(fragment, tagClose, "")

		body, tag := fragment, ""
		if idx := strings.LastIndex(fragment, tagOpen); idx >= 0 {
			body = fragment[:idx]
			tag = strings.TrimSpace(fragment[idx+len(tagOpen):])
		}

		body = strings.TrimSpace(body)
		if utf8.RuneCountInString(body) < minBodyLength {
			continue
		}
		subs = append(subs, SubRecord{Body: body, Tag: tag})
	}
	return subs, nil
}
