// Package queue moves registration confirmations through RabbitMQ: the
// Publisher enqueues them from the request path and the Consumer delivers
// them by mail in the background.
package queue

import (
	"time"

	"github.com/iliyamo/event-checkin/internal/notify"
)

// DefaultQueue is the durable queue confirmations travel through.
const DefaultQueue = "registration.confirmed"

// RegistrationConfirmedEvent is published once per successful
// registration.  It carries enough for the consumer to render and send the
// confirmation without querying the primary store.  The QR image is not
// part of the message; the consumer renders it from Token.
type RegistrationConfirmedEvent struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	EventName      string    `json:"event_name"`
	EventLocation  string    `json:"event_location,omitempty"`
	EventStartsAt  time.Time `json:"event_starts_at"`
	Recipient      string    `json:"recipient"`
	Name           string    `json:"name"`
	Token          string    `json:"token"`
	CodeURL        string    `json:"code_url,omitempty"`
	ConfirmedAt    time.Time `json:"confirmed_at"`
}

// EventFromConfirmation builds the wire message for c.
func EventFromConfirmation(c notify.Confirmation, at time.Time) RegistrationConfirmedEvent {
	return RegistrationConfirmedEvent{
		RegistrationID: c.RegistrationID,
		EventID:        c.EventID,
		EventName:      c.EventName,
		EventLocation:  c.EventLocation,
		EventStartsAt:  c.EventStartsAt,
		Recipient:      c.Recipient,
		Name:           c.Name,
		Token:          c.Token,
		CodeURL:        c.CodeURL,
		ConfirmedAt:    at.UTC(),
	}
}

// Confirmation converts the message back into a notify.Confirmation
// without the QR image.
func (e RegistrationConfirmedEvent) Confirmation() notify.Confirmation {
	return notify.Confirmation{
		RegistrationID: e.RegistrationID,
		EventID:        e.EventID,
		EventName:      e.EventName,
		EventLocation:  e.EventLocation,
		EventStartsAt:  e.EventStartsAt,
		Recipient:      e.Recipient,
		Name:           e.Name,
		Token:          e.Token,
		CodeURL:        e.CodeURL,
	}
}
