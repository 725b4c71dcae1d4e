package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a messaging failure so both delivery channels surface the
// same taxonomy to callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindTransport
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error is the messaging subsystem error type. It carries a Kind so handlers
// pick the right response without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func NewNotFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

func NewTransportError(msg string, err error) error {
	return &Error{Kind: KindTransport, Msg: msg, Err: err}
}

func NewPersistenceError(msg string, err error) error {
	return &Error{Kind: KindPersistence, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err is not part of the
// taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool    { return KindOf(err) == KindNotFound }
func IsTransport(err error) bool   { return KindOf(err) == KindTransport }
func IsPersistence(err error) bool { return KindOf(err) == KindPersistence }

// HTTPStatus maps an error to the status code the fallback channel responds
// with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTransport:
		return http.StatusServiceUnavailable
	case KindPersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// KindFromHTTPStatus is the inverse mapping, used by the client fallback
// channel so both channels surface the same taxonomy.
func KindFromHTTPStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusServiceUnavailable:
		return KindTransport
	case status >= 500:
		return KindPersistence
	default:
		return KindUnknown
	}
}
