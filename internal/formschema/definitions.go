package formschema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iliyamo/event-checkin/internal/model"
)

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateDefinitions enforces the authoring-time invariants of an event's
// field list: names are well formed, unique and not the reserved consent
// key, kinds are known and choice fields carry options.  Errors are keyed
// by "fields[i]".  It returns nil when the list is acceptable.
func ValidateDefinitions(fields []model.FieldDefinition) FieldErrors {
	errs := FieldErrors{}
	seen := make(map[string]int, len(fields))
	for i, f := range fields {
		key := fmt.Sprintf("fields[%d]", i)
		name := strings.TrimSpace(f.Name)
		switch {
		case name == "":
			errs.add(key, "name is required")
		case !namePattern.MatchString(name):
			errs.add(key, "name must start with a letter and contain only letters, digits and underscores")
		case strings.EqualFold(name, model.ConsentField):
			errs.add(key, fmt.Sprintf("name %q is reserved", model.ConsentField))
		default:
			if j, dup := seen[name]; dup {
				errs.add(key, fmt.Sprintf("name %q duplicates fields[%d]", name, j))
			} else {
				seen[name] = i
			}
		}
		if !f.Kind.Valid() {
			errs.add(key, fmt.Sprintf("unknown kind %q", f.Kind))
			continue
		}
		if f.Kind.HasOptions() {
			if len(f.Options) == 0 {
				errs.add(key, "options are required for "+string(f.Kind)+" fields")
			}
			for _, opt := range f.Options {
				if strings.TrimSpace(opt) == "" {
					errs.add(key, "options must not be empty strings")
					break
				}
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
