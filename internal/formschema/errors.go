package formschema

import (
	"sort"
	"strings"
)

// FieldErrors maps a field name to every message produced for it, in the
// order the rules ran.  A nil or empty FieldErrors means no error.
type FieldErrors map[string][]string

func (e FieldErrors) add(name, msg string) {
	e[name] = append(e[name], msg)
}

// First returns the message to display for name, or "" when the field is
// valid.
func (e FieldErrors) First(name string) string {
	if msgs := e[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Has reports whether name has at least one error.
func (e FieldErrors) Has(name string) bool {
	return len(e[name]) > 0
}

// Error implements error with a stable, name-sorted rendering.
func (e FieldErrors) Error() string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e[name], ", "))
	}
	return strings.Join(parts, "; ")
}
