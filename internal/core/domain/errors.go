package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindCapacityExceeded        ErrorKind = "capacity_exceeded"
	KindSessionExpired          ErrorKind = "session_expired"
	KindSessionNotFound         ErrorKind = "session_not_found"
	KindInvalidWaitlistPosition ErrorKind = "invalid_waitlist_position"
	KindConcurrentModification  ErrorKind = "concurrent_modification"
	KindPaymentFinalization     ErrorKind = "payment_finalization"
	KindValidation              ErrorKind = "validation"
)

// ErrVersionConflict is returned by repositories when an optimistic
// compare-and-set matched no row. Services retry on it and never return it.
var ErrVersionConflict = errors.New("version conflict")

// Error is the engine's tagged error. Two errors are equal under errors.Is
// when their kinds match.
type Error struct {
	Kind    ErrorKind
	Message string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// With returns a copy of e with key=value added to its context.
func (e *Error) With(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Context: ctx, Cause: e.Cause}
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons.
var (
	ErrCapacityExceeded        = NewError(KindCapacityExceeded, "capacity exceeded")
	ErrSessionExpired          = NewError(KindSessionExpired, "checkout session is no longer in progress")
	ErrSessionNotFound         = NewError(KindSessionNotFound, "session not found")
	ErrInvalidWaitlistPosition = NewError(KindInvalidWaitlistPosition, "invalid waitlist position")
	ErrConcurrentModification  = NewError(KindConcurrentModification, "concurrent modification")
	ErrPaymentFinalization     = NewError(KindPaymentFinalization, "payment finalization failed")
	ErrValidation              = NewError(KindValidation, "validation failed")
)

func CapacityExceeded(sessionID fmt.Stringer, requested, available int) *Error {
	return &Error{
		Kind:    KindCapacityExceeded,
		Message: "not enough seats available",
		Context: map[string]any{"session_id": sessionID.String(), "requested": requested, "available": available},
	}
}

func SessionExpired(checkoutID fmt.Stringer, status CheckoutStatus) *Error {
	return &Error{
		Kind:    KindSessionExpired,
		Message: "checkout session is no longer in progress",
		Context: map[string]any{"checkout_id": checkoutID.String(), "status": string(status)},
	}
}

func NotFound(entity string, id fmt.Stringer) *Error {
	return &Error{
		Kind:    KindSessionNotFound,
		Message: entity + " not found",
		Context: map[string]any{"id": id.String()},
	}
}

func InvalidWaitlistPosition(position, length int) *Error {
	return &Error{
		Kind:    KindInvalidWaitlistPosition,
		Message: fmt.Sprintf("position must be between 1 and %d", length),
		Context: map[string]any{"position": position, "length": length},
	}
}

func ConcurrentModification(op string, cause error) *Error {
	return &Error{
		Kind:    KindConcurrentModification,
		Message: op + " gave up after repeated version conflicts",
		Context: map[string]any{"operation": op},
		Cause:   cause,
	}
}

func PaymentFinalization(reason string) *Error {
	return &Error{
		Kind:    KindPaymentFinalization,
		Message: "payment was not successful",
		Context: map[string]any{"reason": reason},
	}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
