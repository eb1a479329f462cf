package model

import "time"

// FormData maps a FieldDefinition.Name to its submitted value.  Values are
// string, bool or []string depending on the field kind.
type FormData map[string]any

// Registration is one attendee's submission for an event.
//
// Fields:
//  ID           – opaque unique identifier.
//  EventID      – owning event.
//  SubmittedAt  – creation timestamp, never changed afterwards.
//  FormData     – validated answers keyed by field name.
//  CheckInToken – unique token encoded in the attendee's QR code.
//  CheckedIn    – whether the attendee has been admitted.
//  CheckInTime  – when CheckedIn last became true (nil while not checked in).
type Registration struct {
	ID           string     `json:"id" bson:"_id"`
	EventID      string     `json:"event_id" bson:"event_id"`
	SubmittedAt  time.Time  `json:"submitted_at" bson:"submitted_at"`
	FormData     FormData   `json:"form_data" bson:"form_data"`
	CheckInToken string     `json:"check_in_token" bson:"check_in_token"`
	CheckedIn    bool       `json:"checked_in" bson:"checked_in"`
	CheckInTime  *time.Time `json:"check_in_time" bson:"check_in_time"`
}

// CheckInToken is the lookup artifact written together with a
// Registration.  It only points back at the registration; it owns nothing.
type CheckInToken struct {
	Token          string    `json:"token" bson:"_id"`
	EventID        string    `json:"event_id" bson:"event_id"`
	RegistrationID string    `json:"registration_id" bson:"registration_id"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

// Token returns the artifact that must be persisted alongside r.
func (r *Registration) Token() CheckInToken {
	return CheckInToken{
		Token:          r.CheckInToken,
		EventID:        r.EventID,
		RegistrationID: r.ID,
		CreatedAt:      r.SubmittedAt,
	}
}

// Normalize converts list values that came back from a generic document
// decoder as []any into []string so that FormData always carries the same
// concrete types the validator produced.
func (d FormData) Normalize() {
	for k, v := range d {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		d[k] = out
	}
}

// Clone returns a shallow copy of r whose FormData and CheckInTime are not
// shared with the original.
func (r Registration) Clone() Registration {
	if r.FormData != nil {
		data := make(FormData, len(r.FormData))
		for k, v := range r.FormData {
			if list, ok := v.([]string); ok {
				v = append([]string(nil), list...)
			}
			data[k] = v
		}
		r.FormData = data
	}
	if r.CheckInTime != nil {
		t := *r.CheckInTime
		r.CheckInTime = &t
	}
	return r
}
