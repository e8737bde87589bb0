package domain

import (
	"errors"
	"fmt"
	"strings"
)

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// SeatUnavailableError is returned when one or more requested seats are booked
// or covered by another active hold. Seats lists every conflicting seat label.
type SeatUnavailableError struct {
	ScheduleID string
	Seats      []string
}

func (e SeatUnavailableError) Error() string {
	if len(e.Seats) == 0 {
		return "seat unavailable"
	}
	return fmt.Sprintf("seats unavailable: %s", strings.Join(e.Seats, ", "))
}

type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	if e.ID != "" {
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type AuthorizationError struct {
	Msg string
}

func (e AuthorizationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "not authorized"
}

// PolicyViolationError is returned when a cancellation falls inside the
// cutoff window and no override applies.
type PolicyViolationError struct {
	Policy string
	Msg    string
}

func (e PolicyViolationError) Error() string {
	switch {
	case e.Msg != "" && e.Policy != "":
		return fmt.Sprintf("%s: %s", e.Policy, e.Msg)
	case e.Msg != "":
		return e.Msg
	default:
		return "policy violation"
	}
}

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

// Internal wraps a storage or infrastructure failure.
func Internal(msg string, err error) error {
	return InternalError{Msg: msg, Err: err}
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsSeatUnavailable(err error) bool {
	var target SeatUnavailableError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target AuthorizationError
	return errors.As(err, &target)
}

func IsPolicyViolation(err error) bool {
	var target PolicyViolationError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}

// IsTyped reports whether err already carries one of the domain error types.
func IsTyped(err error) bool {
	return IsValidation(err) || IsSeatUnavailable(err) || IsNotFound(err) ||
		IsAuthorization(err) || IsPolicyViolation(err) || IsInternal(err)
}
