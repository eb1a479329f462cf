// Package repository defines the persistence contract for events and
// registrations together with its MySQL, MongoDB and in-memory
// implementations.  The sentinel values below let higher layers such as
// the service and the handlers distinguish between failure scenarios
// without knowing which backend produced them.
package repository

import "errors"

// ErrEventNotFound is returned when no event has the requested id.
var ErrEventNotFound = errors.New("event not found")

// ErrRegistrationNotFound is returned when no registration matches the
// requested id or check-in token within the given event.
var ErrRegistrationNotFound = errors.New("registration not found")

// ErrConflict is returned when a write would violate a uniqueness
// constraint, such as a reused registration id or check-in token.
var ErrConflict = errors.New("conflict")
