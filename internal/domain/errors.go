package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindAvailability        ErrorKind = "availability"
	KindConflict            ErrorKind = "conflict"
	KindAuthorization       ErrorKind = "authorization"
	KindStateTransition     ErrorKind = "state_transition"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
)

var (
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrProviderNotFound   = errors.New("provider not found")
)

// KindOf returns the taxonomy kind of err, or "" if err is not one of the
// booking errors.
func KindOf(err error) ErrorKind {
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Kind() ErrorKind { return KindValidation }

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

type AvailabilityError struct {
	ProviderID  string
	Date        time.Time
	Reason      string
	Suggestions []int
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("provider %s is not available on %s: %s", e.ProviderID, e.Date.Format(DateLayout), e.Reason)
}

func (e *AvailabilityError) Kind() ErrorKind { return KindAvailability }

type ConflictError struct {
	ProviderID         string
	ConflictingBooking string
	Suggestions        []int
}

func (e *ConflictError) Error() string {
	if e.ConflictingBooking == "" {
		return "slot is no longer available"
	}
	return "slot conflicts with booking " + e.ConflictingBooking
}

func (e *ConflictError) Kind() ErrorKind { return KindConflict }

type AuthorizationError struct {
	Actor         ActorRef
	Action        string
	BookingNumber string
	// Resource names the target when it is not a booking.
	Resource string
}

func (e *AuthorizationError) Error() string {
	target := "booking " + e.BookingNumber
	if e.Resource != "" {
		target = e.Resource
	}
	return fmt.Sprintf("%s %q may not %s %s", e.Actor.Role, e.Actor.ID, e.Action, target)
}

func (e *AuthorizationError) Kind() ErrorKind { return KindAuthorization }

type StateTransitionError struct {
	BookingNumber string
	From          BookingStatus
	Action        string
	Reason        string
}

func (e *StateTransitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot %s booking %s in status %s", e.Action, e.BookingNumber, e.From)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *StateTransitionError) Kind() ErrorKind { return KindStateTransition }

type ConcurrencyConflictError struct {
	ProviderID string
	Date       time.Time
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent reservation for provider %s on %s", e.ProviderID, e.Date.Format(DateLayout))
}

func (e *ConcurrencyConflictError) Kind() ErrorKind { return KindConcurrencyConflict }
