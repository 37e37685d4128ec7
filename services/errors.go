package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies reservation failures independently of transport.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation_failed"
	KindLeadTime          ErrorKind = "lead_time_violation"
	KindBlacklisted       ErrorKind = "blacklisted"
	KindManualContact     ErrorKind = "requires_manual_contact"
	KindNoAvailability    ErrorKind = "no_availability"
	KindNotFound          ErrorKind = "not_found"
	KindConcurrent        ErrorKind = "concurrent_conflict"
	KindInvalidTransition ErrorKind = "invalid_transition"
)

// ReservationError is returned by the reservation engine for business rule failures.
type ReservationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ReservationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ReservationError) Unwrap() error {
	return e.Err
}

// Is matches any ReservationError of the same kind.
func (e *ReservationError) Is(target error) bool {
	var t *ReservationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation        = &ReservationError{Kind: KindValidation, Message: "validation failed"}
	ErrLeadTime          = &ReservationError{Kind: KindLeadTime, Message: "reservation is too close to the requested time"}
	ErrBlacklisted       = &ReservationError{Kind: KindBlacklisted, Message: "contact is not allowed to make reservations"}
	ErrManualContact     = &ReservationError{Kind: KindManualContact, Message: "party size requires contacting the restaurant directly"}
	ErrNoAvailability    = &ReservationError{Kind: KindNoAvailability, Message: "no table available for the requested time"}
	ErrNotFound          = &ReservationError{Kind: KindNotFound, Message: "not found"}
	ErrConcurrent        = &ReservationError{Kind: KindConcurrent, Message: "table was claimed by another reservation, retry"}
	ErrInvalidTransition = &ReservationError{Kind: KindInvalidTransition, Message: "status change not allowed"}
)

func newError(kind ErrorKind, format string, args ...interface{}) error {
	return &ReservationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not a ReservationError.
func KindOf(err error) ErrorKind {
	var re *ReservationError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
