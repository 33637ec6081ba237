package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeIdempotency     Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeDependency      Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is surfaced to API callers.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type registration struct {
	code Code
	meta Metadata
}

var registry = func() map[Code]Metadata {
	rows := []registration{
		{CodeValidation, Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true}},
		{CodePayloadTooLarge, Metadata{HTTPStatus: http.StatusRequestEntityTooLarge, PublicMessage: "request body too large", DetailsAllowed: true}},
		{CodeUnauthorized, Metadata{HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"}},
		{CodeForbidden, Metadata{HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"}},
		{CodeNotFound, Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"}},
		{CodeConflict, Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"}},
		{CodeIdempotency, Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true}},
		{CodeInternal, Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}},
		{CodeDependency, Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true}},
	}
	out := make(map[Code]Metadata, len(rows))
	for _, row := range rows {
		out[row.code] = row.meta
	}
	return out
}()

// MetadataFor falls back to the internal error entry for unknown codes.
func MetadataFor(code Code) Metadata {
	meta, ok := registry[code]
	if !ok {
		return registry[CodeInternal]
	}
	return meta
}

// Error is the typed error carried from services to the transport layer.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code and caller-facing message to err. A nil err behaves
// like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is lets errors.Is match any typed error by code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the outermost typed error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether the outermost typed error carries code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
