// Package status maps lifecycle labels shown to operators onto the stored
// three-state enum. Unknown input never fails; it falls back to Draft.
package status

import "strings"

// Status is the stored lifecycle state of a course, module or lesson.
type Status string

const (
	Draft     Status = "DRAFT"
	Published Status = "PUBLISHED"
	Archived  Status = "ARCHIVED"
)

// All lists the internal values in display order.
var All = []Status{Draft, Published, Archived}

var labels = map[Status]string{
	Draft:     "Draft",
	Published: "Published",
	Archived:  "Archived",
}

// ToInternal accepts an internal value as-is or one of the external labels.
// Anything else maps to Draft.
func ToInternal(label string) Status {
	s := Status(label)
	if _, ok := labels[s]; ok {
		return s
	}
	trimmed := strings.TrimSpace(label)
	for internal, external := range labels {
		if strings.EqualFold(trimmed, external) {
			return internal
		}
	}
	return Draft
}

// ToExternal returns the operator-facing label.
func ToExternal(s Status) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return labels[Draft]
}

// Valid reports whether s is one of the three internal values.
func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

func (s Status) String() string { return string(s) }
