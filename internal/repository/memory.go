package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/event-checkin/internal/model"
)

// MemoryStore keeps everything in process memory behind one mutex.  It is
// used for local development and by the workflow tests.
type MemoryStore struct {
	mu            sync.Mutex
	events        map[string]model.Event
	registrations map[string]model.Registration
	tokens        map[string]model.CheckInToken
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make(map[string]model.Event),
		registrations: make(map[string]model.Registration),
		tokens:        make(map[string]model.CheckInToken),
	}
}

func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return ErrConflict
	}
	ev := *e
	ev.Fields = append([]model.FieldDefinition(nil), e.Fields...)
	s.events[e.ID] = ev
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	ev.Fields = append([]model.FieldDefinition(nil), ev.Fields...)
	return &ev, nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		ev.Fields = append([]model.FieldDefinition(nil), ev.Fields...)
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

// CreateRegistration checks every constraint before writing either record,
// so a failure leaves no trace.
func (s *MemoryStore) CreateRegistration(_ context.Context, r *model.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[r.EventID]; !ok {
		return ErrEventNotFound
	}
	if _, ok := s.registrations[r.ID]; ok {
		return ErrConflict
	}
	if _, ok := s.tokens[r.CheckInToken]; ok {
		return ErrConflict
	}
	s.registrations[r.ID] = r.Clone()
	s.tokens[r.CheckInToken] = r.Token()
	return nil
}

func (s *MemoryStore) GetRegistration(_ context.Context, eventID, id string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok || reg.EventID != eventID {
		return nil, ErrRegistrationNotFound
	}
	reg = reg.Clone()
	return &reg, nil
}

func (s *MemoryStore) GetRegistrationByToken(_ context.Context, eventID, token string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[token]
	if !ok || tok.EventID != eventID {
		return nil, ErrRegistrationNotFound
	}
	reg, ok := s.registrations[tok.RegistrationID]
	if !ok {
		return nil, ErrRegistrationNotFound
	}
	reg = reg.Clone()
	return &reg, nil
}

func (s *MemoryStore) ListRegistrations(_ context.Context, eventID string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Registration, 0)
	for _, reg := range s.registrations {
		if reg.EventID == eventID {
			out = append(out, reg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkCheckedIn(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok || reg.CheckedIn {
		return false, nil
	}
	reg.CheckedIn = true
	reg.CheckInTime = &at
	s.registrations[id] = reg
	return true, nil
}

func (s *MemoryStore) OverrideCheckIn(_ context.Context, id string, checkedIn bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok {
		return ErrRegistrationNotFound
	}
	switch {
	case !checkedIn:
		reg.CheckInTime = nil
	case !reg.CheckedIn:
		reg.CheckInTime = &at
	}
	reg.CheckedIn = checkedIn
	s.registrations[id] = reg
	return nil
}
