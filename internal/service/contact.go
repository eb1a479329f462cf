package service

import (
	"strings"

	"github.com/iliyamo/event-checkin/internal/model"
)

// Conventional field names an organizer uses for the attendee's name.
const (
	fieldFirstName = "firstName"
	fieldLastName  = "lastName"
	fieldFullName  = "fullName"
	fieldName      = "name"
)

// contactOf picks the confirmation recipient and a display name out of a
// submission.  The address is the first email-kind field with a value.
// The name is firstName plus lastName, else fullName, else name, else the
// address itself.
func contactOf(fields []model.FieldDefinition, data model.FormData) (email, name string) {
	for _, f := range fields {
		if f.Kind != model.KindEmail {
			continue
		}
		if v, _ := data[f.Name].(string); v != "" {
			email = v
			break
		}
	}
	return email, displayName(data, email)
}

func displayName(data model.FormData, fallback string) string {
	str := func(key string) string {
		v, _ := data[key].(string)
		return strings.TrimSpace(v)
	}
	if full := strings.TrimSpace(str(fieldFirstName) + " " + str(fieldLastName)); full != "" {
		return full
	}
	if v := str(fieldFullName); v != "" {
		return v
	}
	if v := str(fieldName); v != "" {
		return v
	}
	return fallback
}
