package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrForbidden            = errors.New("forbidden")
	ErrNotParticipant       = errors.New("actor is not a party to this record")
	ErrListingUnavailable   = errors.New("listing is not available")
	ErrSelfNegotiation      = errors.New("vendor cannot negotiate on own listing")
	ErrDuplicateNegotiation = errors.New("an active negotiation already exists for this listing")
	ErrOfferOutOfRange      = errors.New("offer is outside the accepted range")
	ErrNegotiationExpired   = errors.New("negotiation has expired")
	ErrNegotiationClosed    = errors.New("negotiation is no longer active")
	ErrTooManyRounds        = errors.New("offer round limit reached")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrDuplicateRating      = errors.New("transaction already rated")
	ErrStaleWrite           = errors.New("record was modified concurrently")
	ErrNotFound             = errors.New("not found")
)

// Error is a domain failure carrying an HTTP-style status hint.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(status int, sentinel error, format string, args ...any) *Error {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Status: status, Message: msg, Err: sentinel}
}

func BadRequest(sentinel error, format string, args ...any) *Error {
	if sentinel == nil {
		sentinel = ErrValidation
	}
	return newError(http.StatusBadRequest, sentinel, format, args...)
}

func Forbidden(sentinel error, format string, args ...any) *Error {
	if sentinel == nil {
		sentinel = ErrForbidden
	}
	return newError(http.StatusForbidden, sentinel, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(http.StatusNotFound, ErrNotFound, format, args...)
}

func Conflict(sentinel error, format string, args ...any) *Error {
	return newError(http.StatusConflict, sentinel, format, args...)
}

func TooManyRequests(sentinel error, format string, args ...any) *Error {
	return newError(http.StatusTooManyRequests, sentinel, format, args...)
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

// StatusCode returns the HTTP status hint for err. Errors that are not
// domain errors are treated as unexpected.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var derr *Error
	if errors.As(err, &derr) && derr.Status != 0 {
		return derr.Status
	}
	return http.StatusInternalServerError
}
