// Package service implements the registration and check-in workflow on top
// of a repository.Store.  Handlers call it; it knows nothing about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/formschema"
	"github.com/iliyamo/event-checkin/internal/model"
	"github.com/iliyamo/event-checkin/internal/notify"
	"github.com/iliyamo/event-checkin/internal/qrcode"
	"github.com/iliyamo/event-checkin/internal/repository"
)

// EmailStatus records what happened to the confirmation of a registration.
type EmailStatus string

const (
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
	EmailSkipped EmailStatus = "skipped" // no address in the submission
)

const (
	defaultNotifyTimeout = 10 * time.Second
	createAttempts       = 3
)

// RegistrationResult is returned by Register.  EmailError is set when
// EmailStatus is EmailFailed.
type RegistrationResult struct {
	Registration model.Registration
	EmailStatus  EmailStatus
	EmailError   string
}

// CheckInResult is returned by a successful CheckIn.
type CheckInResult struct {
	Registration model.Registration
	Attendee     string
}

// Registrations is the workflow service.  It is safe for concurrent use;
// check-ins on the same token are serialized by the store, not here.
type Registrations struct {
	store         repository.Store
	notifier      notify.Notifier
	log           *zap.Logger
	now           func() time.Time
	newID         func() string
	notifyTimeout time.Duration
	baseURL       string

	sends sync.WaitGroup
}

// Option customizes a Registrations.
type Option func(*Registrations)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Registrations) { s.now = now } }

// WithIDGenerator replaces the UUID generator used for ids and tokens.
func WithIDGenerator(gen func() string) Option { return func(s *Registrations) { s.newID = gen } }

// WithNotifyTimeout bounds each confirmation send.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Registrations) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithPublicBaseURL makes confirmations link to the check-in code image
// served under base.
func WithPublicBaseURL(base string) Option {
	return func(s *Registrations) { s.baseURL = strings.TrimRight(base, "/") }
}

// NewRegistrations wires the service.  A nil notifier disables
// confirmations; every registration then reports EmailSkipped.
func NewRegistrations(store repository.Store, notifier notify.Notifier, log *zap.Logger, opts ...Option) *Registrations {
	s := &Registrations{
		store:         store,
		notifier:      notifier,
		log:           log,
		now:           time.Now,
		newID:         uuid.NewString,
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until confirmation sends that outlived their request have
// finished.  Call it during shutdown.
func (s *Registrations) Wait() { s.sends.Wait() }

// FormFor loads an event and compiles its registration form.
func (s *Registrations) FormFor(ctx context.Context, eventID string) (*model.Event, *formschema.Schema, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, storeErr(err)
	}
	schema, err := formschema.Compile(ev.Fields)
	if err != nil {
		return nil, nil, fmt.Errorf("compile form of event %s: %w", ev.ID, err)
	}
	return ev, schema, nil
}

// Register validates raw against the event's form and stores the
// registration together with its check-in token.  Nothing is written when
// validation fails.  The confirmation is sent afterwards; its outcome is
// reported in the result and never undoes the registration.
func (s *Registrations) Register(ctx context.Context, eventID string, raw map[string]any) (*RegistrationResult, error) {
	ev, schema, err := s.FormFor(ctx, eventID)
	if err != nil {
		return nil, err
	}
	data, fieldErrs := schema.Validate(raw)
	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	reg := model.Registration{
		EventID:     ev.ID,
		SubmittedAt: s.stamp(),
		FormData:    data,
	}
	for attempt := 1; ; attempt++ {
		reg.ID = s.newID()
		reg.CheckInToken = s.newID()
		err = s.store.CreateRegistration(ctx, &reg)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) || attempt == createAttempts {
			return nil, storeErr(err)
		}
		s.log.Warn("registration id collision, retrying",
			zap.String("event_id", ev.ID), zap.Int("attempt", attempt))
	}

	res := &RegistrationResult{Registration: reg}
	res.EmailStatus, res.EmailError = s.confirm(ctx, ev, &reg)
	s.log.Info("registration created",
		zap.String("event_id", ev.ID),
		zap.String("registration_id", reg.ID),
		zap.String("email_status", string(res.EmailStatus)),
	)
	return res, nil
}

// confirm sends the confirmation in a goroutine detached from the request
// and waits for it at most notifyTimeout.
func (s *Registrations) confirm(ctx context.Context, ev *model.Event, reg *model.Registration) (EmailStatus, string) {
	email, name := contactOf(ev.Fields, reg.FormData)
	if email == "" || s.notifier == nil {
		return EmailSkipped, ""
	}

	conf := notify.Confirmation{
		RegistrationID: reg.ID,
		EventID:        ev.ID,
		EventName:      ev.Name,
		EventLocation:  ev.Location,
		EventStartsAt:  ev.StartsAt,
		Recipient:      email,
		Name:           name,
		Token:          reg.CheckInToken,
		CodeURL:        s.CodeURL(reg.CheckInToken),
	}
	if png, err := qrcode.Encode(reg.CheckInToken); err != nil {
		s.log.Warn("render check-in code failed", zap.String("registration_id", reg.ID), zap.Error(err))
	} else {
		conf.QRCode = png
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	done := make(chan notify.Result, 1)
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				done <- notify.Result{Reason: fmt.Sprintf("notifier panic: %v", r)}
			}
		}()
		done <- s.notifier.Send(sendCtx, conf)
	}()

	timer := time.NewTimer(s.notifyTimeout)
	defer timer.Stop()
	var res notify.Result
	select {
	case res = <-done:
	case <-timer.C:
		res = notify.Result{Reason: "notification timed out"}
	}
	if !res.Sent {
		s.log.Warn("confirmation not sent",
			zap.String("registration_id", reg.ID), zap.String("error", res.Reason))
		return EmailFailed, res.Reason
	}
	return EmailSent, ""
}

// stamp reads the clock at the millisecond precision the stores keep, so
// a time handed to a caller equals the one read back later.
func (s *Registrations) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// CodeURL returns the public link to the QR image of token, or "" when no
// public base URL is configured.
func (s *Registrations) CodeURL(token string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/v1/checkin-codes/" + token
}

// CheckIn admits the holder of token to the event.  The first successful
// call wins; every later call for the same token, including concurrent
// ones that lost the race, gets an *AlreadyCheckedInError carrying the
// winner's time.
func (s *Registrations) CheckIn(ctx context.Context, eventID, token string) (*CheckInResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrRegistrationNotFound
	}
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, storeErr(err)
	}
	reg, err := s.store.GetRegistrationByToken(ctx, eventID, token)
	if err != nil {
		return nil, storeErr(err)
	}
	_, attendee := contactOf(ev.Fields, reg.FormData)
	if reg.CheckedIn {
		return nil, alreadyCheckedIn(reg, attendee)
	}

	now := s.stamp()
	won, err := s.store.MarkCheckedIn(ctx, reg.ID, now)
	if err != nil {
		return nil, storeErr(err)
	}
	if !won {
		cur, err := s.store.GetRegistration(ctx, eventID, reg.ID)
		if err != nil {
			return nil, storeErr(err)
		}
		if cur.CheckedIn {
			return nil, alreadyCheckedIn(cur, attendee)
		}
		return nil, fmt.Errorf("%w: check-in state of %s changed concurrently", ErrStorageUnavailable, reg.ID)
	}

	reg.CheckedIn = true
	reg.CheckInTime = &now
	s.log.Info("checked in",
		zap.String("event_id", eventID), zap.String("registration_id", reg.ID))
	return &CheckInResult{Registration: *reg, Attendee: attendee}, nil
}

// SetCheckIn is the administrative override: it sets the check-in flag of
// a registration regardless of its current value.  Setting false clears
// the check-in time so the code can be scanned again; forcing true on a
// registration that is already checked in keeps the original time.
func (s *Registrations) SetCheckIn(ctx context.Context, eventID, registrationID string, checkedIn bool) (*model.Registration, error) {
	if _, err := s.store.GetRegistration(ctx, eventID, registrationID); err != nil {
		return nil, storeErr(err)
	}
	if err := s.store.OverrideCheckIn(ctx, registrationID, checkedIn, s.stamp()); err != nil {
		return nil, storeErr(err)
	}
	reg, err := s.store.GetRegistration(ctx, eventID, registrationID)
	if err != nil {
		return nil, storeErr(err)
	}
	s.log.Info("check-in overridden",
		zap.String("event_id", eventID),
		zap.String("registration_id", registrationID),
		zap.Bool("checked_in", checkedIn),
	)
	return reg, nil
}

// GetRegistrationByToken resolves a token without changing anything.
func (s *Registrations) GetRegistrationByToken(ctx context.Context, eventID, token string) (*model.Registration, error) {
	reg, err := s.store.GetRegistrationByToken(ctx, eventID, token)
	if err != nil {
		return nil, storeErr(err)
	}
	return reg, nil
}

// ListRegistrations returns every registration of an event in submission
// order.
func (s *Registrations) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, storeErr(err)
	}
	regs, err := s.store.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, storeErr(err)
	}
	return regs, nil
}

// EventStats summarizes attendance for the door dashboard.
type EventStats struct {
	EventID    string `json:"event_id"`
	Registered int    `json:"registered"`
	CheckedIn  int    `json:"checked_in"`
	Remaining  int    `json:"remaining"`
}

// Stats counts registrations and check-ins of an event.
func (s *Registrations) Stats(ctx context.Context, eventID string) (*EventStats, error) {
	regs, err := s.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, err
	}
	st := &EventStats{EventID: eventID, Registered: len(regs)}
	for _, r := range regs {
		if r.CheckedIn {
			st.CheckedIn++
		}
	}
	st.Remaining = st.Registered - st.CheckedIn
	return st, nil
}
