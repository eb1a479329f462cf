package repository

import (
	"context"
	"time"

	"github.com/iliyamo/event-checkin/internal/model"
)

// Store is the persistence boundary used by the registration workflow.
//
// CreateRegistration writes the registration and its check-in token
// artifact all-or-nothing.  MarkCheckedIn is a compare-and-set: it flips
// checked_in from false to true and reports whether this call performed
// the flip.  OverrideCheckIn is the privileged path that sets the flag
// unconditionally.
type Store interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)

	CreateRegistration(ctx context.Context, r *model.Registration) error
	GetRegistration(ctx context.Context, eventID, id string) (*model.Registration, error)
	GetRegistrationByToken(ctx context.Context, eventID, token string) (*model.Registration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)

	MarkCheckedIn(ctx context.Context, id string, at time.Time) (bool, error)
	OverrideCheckIn(ctx context.Context, id string, checkedIn bool, at time.Time) error
}
