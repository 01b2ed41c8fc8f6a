package errutil

import (
	"errors"
	"net/http"
)

// Kind is the machine-readable classification carried by every error
// surfaced through the JSON API.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindBadRequest        Kind = "bad_request"
	KindValidation        Kind = "validation_error"
	KindConflict          Kind = "conflict"
	KindRateLimited       Kind = "rate_limited"
	KindProviderTransient Kind = "provider_transient"
	KindProviderPermanent Kind = "provider_permanent"
	KindInternal          Kind = "internal"
)

type Error struct {
	kind  Kind
	field string
	err   error
}

func (e *Error) Error() string {
	if e.err == nil {
		return string(e.kind)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Field() string {
	return e.field
}

func newError(kind Kind, err error) *Error {
	return &Error{kind: kind, err: err}
}

func NotFoundError(err error) *Error {
	return newError(KindNotFound, err)
}

func BadRequestError(err error) *Error {
	return newError(KindBadRequest, err)
}

func ValidationError(err error) *Error {
	return newError(KindValidation, err)
}

// ValidationFieldError tags the offending field so clients can surface
// it next to the right input.
func ValidationFieldError(err error, field string) *Error {
	return &Error{kind: KindValidation, field: field, err: err}
}

func ConflictError(err error) *Error {
	return newError(KindConflict, err)
}

func RateLimitError(err error) *Error {
	return newError(KindRateLimited, err)
}

func TransientProviderError(err error) *Error {
	return newError(KindProviderTransient, err)
}

func PermanentProviderError(err error) *Error {
	return newError(KindProviderPermanent, err)
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.field
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetriable reports whether a provider send may be retried.
func IsRetriable(err error) bool {
	return IsKind(err, KindProviderTransient)
}

func ParseHttpError(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, err.Error()
	}

	switch e.kind {
	case KindNotFound:
		return http.StatusNotFound, e.Error()
	case KindBadRequest, KindValidation:
		return http.StatusBadRequest, e.Error()
	case KindConflict:
		return http.StatusConflict, e.Error()
	case KindRateLimited:
		return http.StatusTooManyRequests, e.Error()
	case KindProviderTransient, KindProviderPermanent:
		return http.StatusBadGateway, e.Error()
	default:
		return http.StatusInternalServerError, e.Error()
	}
}
