// Package formschema turns an event's declarative field list into a
// validator for attendee submissions and into the default shape of an
// empty form.
package formschema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/event-checkin/internal/model"
)

const (
	consentLabel   = "I agree to the terms"
	minPhoneLength = 7
)

var (
	phonePattern = regexp.MustCompile(`^[0-9+()\- ]+$`)
	validate     = validator.New()
)

// Schema is the compiled form of an event: its own fields followed by the
// mandatory consent checkbox.
type Schema struct {
	fields []model.FieldDefinition
}

// Compile builds the schema for fields.  The definitions are expected to
// have passed ValidateDefinitions when the event was authored; Compile only
// refuses kinds it has no rule for.
func Compile(fields []model.FieldDefinition) (*Schema, error) {
	compiled := make([]model.FieldDefinition, 0, len(fields)+1)
	for _, f := range fields {
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
		compiled = append(compiled, f)
	}
	compiled = append(compiled, model.FieldDefinition{
		Name:     model.ConsentField,
		Label:    consentLabel,
		Kind:     model.KindCheckbox,
		Required: true,
	})
	return &Schema{fields: compiled}, nil
}

// Fields returns the compiled field list, consent field included.
func (s *Schema) Fields() []model.FieldDefinition {
	out := make([]model.FieldDefinition, len(s.fields))
	copy(out, s.fields)
	return out
}

// Defaults returns the record used to initialise an empty form.
func (s *Schema) Defaults() model.FormData {
	out := make(model.FormData, len(s.fields))
	for _, f := range s.fields {
		switch f.Kind {
		case model.KindCheckbox:
			out[f.Name] = false
		case model.KindMultipleChoice:
			out[f.Name] = []string{}
		default:
			out[f.Name] = ""
		}
	}
	return out
}

// Validate checks raw submitted values against the schema.  On success the
// returned record holds exactly one typed entry per field; unknown keys in
// raw are dropped.  On failure the record is nil and every invalid field is
// reported.
func (s *Schema) Validate(raw map[string]any) (model.FormData, FieldErrors) {
	out := make(model.FormData, len(s.fields))
	errs := FieldErrors{}
	for _, f := range s.fields {
		value, msgs := check(f, raw[f.Name])
		if len(msgs) > 0 {
			for _, m := range msgs {
				errs.add(f.Name, m)
			}
			continue
		}
		out[f.Name] = value
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// check applies the rule for f.Kind to one raw value.
func check(f model.FieldDefinition, v any) (any, []string) {
	label := f.Label
	if label == "" {
		label = f.Name
	}
	switch f.Kind {
	case model.KindText, model.KindLongText:
		str, ok := asString(v)
		if !ok {
			return nil, []string{label + " has an invalid value"}
		}
		if f.Required && str == "" {
			return nil, []string{label + " is required"}
		}
		return str, nil

	case model.KindEmail:
		str, ok := asString(v)
		if !ok {
			return nil, []string{label + " has an invalid value"}
		}
		if str == "" {
			if f.Required {
				return nil, []string{label + " is required"}
			}
			return str, nil
		}
		if err := validate.Var(str, "email"); err != nil {
			return nil, []string{label + " must be a valid email address"}
		}
		return str, nil

	case model.KindPhone:
		str, ok := asString(v)
		if !ok {
			return nil, []string{label + " has an invalid value"}
		}
		if str == "" {
			if f.Required {
				return nil, []string{label + " is required"}
			}
			return str, nil
		}
		var msgs []string
		if utf8.RuneCountInString(str) < minPhoneLength {
			msgs = append(msgs, fmt.Sprintf("%s must be at least %d characters", label, minPhoneLength))
		}
		if !phonePattern.MatchString(str) {
			msgs = append(msgs, label+" may only contain digits, spaces and +()-")
		}
		if len(msgs) > 0 {
			return nil, msgs
		}
		return str, nil

	case model.KindCheckbox:
		b, ok := asBool(v)
		if !ok {
			return nil, []string{label + " has an invalid value"}
		}
		if f.Required && !b {
			return nil, []string{label + " must be accepted"}
		}
		return b, nil

	case model.KindRadio:
		str, ok := asString(v)
		if !ok {
			return nil, []string{label + " has an invalid value"}
		}
		if str == "" {
			if f.Required {
				return nil, []string{label + " is required"}
			}
			return str, nil
		}
		if !contains(f.Options, str) {
			return nil, []string{label + " must be one of the listed options"}
		}
		return str, nil

	case model.KindMultipleChoice:
		list, ok := asStrings(v)
		if !ok {
			return nil, []string{label + " has an invalid value"}
		}
		if f.Required && len(list) == 0 {
			return nil, []string{label + " requires at least one selection"}
		}
		for _, item := range list {
			if !contains(f.Options, item) {
				return nil, []string{fmt.Sprintf("%s: %q is not one of the listed options", label, item)}
			}
		}
		return list, nil
	}
	return nil, []string{label + " has an unsupported type"}
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	}
	return "", false
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case nil:
		return false, true
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "1", "yes":
			return true, true
		case "", "false", "off", "0", "no":
			return false, true
		}
	}
	return false, false
}

func asStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return []string{}, true
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}, true
		}
		return []string{}, true
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
