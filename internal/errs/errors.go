// Package errs defines the error taxonomy shared by the booking, pricing and
// waitlist services. Handlers map kinds to HTTP status codes; services wrap
// lower-level failures without losing the kind.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	// KindValidation marks malformed or missing input the caller can fix.
	KindValidation Kind = "validation_error"
	// KindSlotConflict marks an exclusivity or capacity violation detected at
	// commit time; the caller should re-check availability or join the waitlist.
	KindSlotConflict Kind = "slot_conflict"
	// KindConfiguration marks missing campaign pricing/deadline configuration.
	// Admin-fixable, not caller-fixable.
	KindConfiguration Kind = "configuration_error"
	// KindStateConflict marks an invalid lifecycle transition.
	KindStateConflict Kind = "state_conflict"
	// KindPaymentVerification marks a disagreement with the payment gateway.
	KindPaymentVerification Kind = "payment_verification_error"
	// KindNotFound marks a missing entity.
	KindNotFound Kind = "not_found"
	// KindInternal is everything else.
	KindInternal Kind = "internal_error"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func SlotConflict(format string, args ...any) *Error {
	return newf(KindSlotConflict, format, args...)
}

func Configuration(format string, args ...any) *Error {
	return newf(KindConfiguration, format, args...)
}

func StateConflict(format string, args ...any) *Error {
	return newf(KindStateConflict, format, args...)
}

func PaymentVerification(format string, args ...any) *Error {
	return newf(KindPaymentVerification, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

// Internal wraps an unexpected failure so callers still get a kind.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// Wrap keeps kind and message but records the underlying cause.
func Wrap(e *Error, err error) *Error {
	return &Error{Kind: e.Kind, Msg: e.Msg, Err: err}
}

// KindOf extracts the taxonomy kind of err, KindInternal when untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API layer responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindSlotConflict, KindStateConflict:
		return http.StatusConflict
	case KindConfiguration:
		return http.StatusUnprocessableEntity
	case KindPaymentVerification:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
