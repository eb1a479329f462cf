package model

import "time"

// FieldKind names the closed set of input types an organizer can put on a
// registration form.
type FieldKind string

const (
	KindText           FieldKind = "text"
	KindEmail          FieldKind = "email"
	KindPhone          FieldKind = "phone"
	KindCheckbox       FieldKind = "checkbox"
	KindRadio          FieldKind = "radio"
	KindMultipleChoice FieldKind = "multiple_choice"
	KindLongText       FieldKind = "long_text"
)

// Valid reports whether k is one of the known kinds.
func (k FieldKind) Valid() bool {
	switch k {
	case KindText, KindEmail, KindPhone, KindCheckbox, KindRadio, KindMultipleChoice, KindLongText:
		return true
	}
	return false
}

// HasOptions reports whether fields of this kind choose from a fixed list.
func (k FieldKind) HasOptions() bool {
	return k == KindRadio || k == KindMultipleChoice
}

// ConsentField is the key of the mandatory "agree to terms" checkbox that
// closes every registration form.  Organizer fields may not use it.
const ConsentField = "rodo"

// FieldDefinition describes one configurable input on an event's
// registration page.
//
// Fields:
//  Name     – stable machine key, unique within the event.
//  Label    – display text shown to attendees and used in error messages.
//  Kind     – input type, selects the validation rule.
//  Required – whether an empty value is rejected.
//  Options  – allowed values for radio and multiple_choice fields.
type FieldDefinition struct {
	Name     string    `json:"name" bson:"name"`
	Label    string    `json:"label" bson:"label"`
	Kind     FieldKind `json:"kind" bson:"kind"`
	Required bool      `json:"required" bson:"required"`
	Options  []string  `json:"options,omitempty" bson:"options,omitempty"`
}

// Event is an organizer-created event.  Its registration form is derived
// from Fields whenever it is needed and is never stored on its own.
type Event struct {
	ID          string            `json:"id" bson:"_id"`
	Name        string            `json:"name" bson:"name"`
	Description string            `json:"description,omitempty" bson:"description,omitempty"`
	Location    string            `json:"location,omitempty" bson:"location,omitempty"`
	StartsAt    time.Time         `json:"starts_at" bson:"starts_at"`
	Fields      []FieldDefinition `json:"fields" bson:"fields"`
	CreatedAt   time.Time         `json:"created_at" bson:"created_at"`
}
