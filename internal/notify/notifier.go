// Package notify delivers registration confirmations.  Delivery is best
// effort: a Notifier reports what happened in a Result and never fails the
// registration that triggered it.
package notify

import (
	"context"
	"time"
)

// Confirmation is everything a channel needs to tell an attendee that the
// registration went through.
type Confirmation struct {
	RegistrationID string
	EventID        string
	EventName      string
	EventLocation  string
	EventStartsAt  time.Time
	Recipient      string // email address
	Name           string // display name, falls back to Recipient
	Token          string
	QRCode         []byte // PNG of Token; may be nil when rendering failed
	CodeURL        string // public link to the same PNG; may be empty
}

// Result is the outcome of one Send.  Reason is set when Sent is false.
type Result struct {
	Sent   bool
	Reason string
}

// Failed builds a negative Result from err.
func Failed(err error) Result {
	return Result{Reason: err.Error()}
}

// Notifier sends confirmations.  Implementations must honor ctx and must
// not panic on delivery failures.
type Notifier interface {
	Send(ctx context.Context, c Confirmation) Result
}
