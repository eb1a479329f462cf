package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/event-checkin/internal/formschema"
	"github.com/iliyamo/event-checkin/internal/model"
	"github.com/iliyamo/event-checkin/internal/repository"
)

// Sentinel errors returned by Registrations.  Typed errors below wrap them
// so callers can use errors.Is for the category and errors.As for detail.
var (
	ErrValidationFailed     = errors.New("validation failed")
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrAlreadyCheckedIn     = errors.New("already checked in")
	// ErrStorageUnavailable covers every store failure that is not a
	// not-found.  The operation may be retried.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError carries the per-field messages of a rejected submission
// or event definition.
type ValidationError struct {
	Fields formschema.FieldErrors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Fields.Error()
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// AlreadyCheckedInError is returned when a token is presented a second
// time.  CheckedInAt is the time of the first successful check-in.
type AlreadyCheckedInError struct {
	Registration model.Registration
	Attendee     string
	CheckedInAt  time.Time
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("registration %s already checked in at %s",
		e.Registration.ID, e.CheckedInAt.UTC().Format(time.RFC3339))
}

func (e *AlreadyCheckedInError) Unwrap() error { return ErrAlreadyCheckedIn }

func alreadyCheckedIn(reg *model.Registration, attendee string) *AlreadyCheckedInError {
	e := &AlreadyCheckedInError{Registration: *reg, Attendee: attendee}
	if reg.CheckInTime != nil {
		e.CheckedInAt = *reg.CheckInTime
	}
	return e
}

// storeErr maps repository errors onto the service taxonomy.
func storeErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		return ErrEventNotFound
	case errors.Is(err, repository.ErrRegistrationNotFound):
		return ErrRegistrationNotFound
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
