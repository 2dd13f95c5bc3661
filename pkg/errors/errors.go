package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	// CodeDependency covers an unreachable or failing cart service, database or redis.
	CodeDependency Code = "DEPENDENCY_ERROR"
	// CodeMalformed is a cart service reply that does not decode into a cart.
	CodeMalformed Code = "MALFORMED_RESPONSE"
	// CodeClosed is returned by a cart manager after Close.
	CodeClosed Code = "CLOSED"
)

// Metadata is how a code is exposed over HTTP. Retryable drives the cart
// client's retry loop as well as the retryable flag in error envelopes.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable = true
	details   = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:   {http.StatusBadRequest, !retryable, "validation failed", details},
	CodeUnauthorized: {http.StatusUnauthorized, !retryable, "authentication required", !details},
	CodeForbidden:    {http.StatusForbidden, !retryable, "access denied", !details},
	CodeNotFound:     {http.StatusNotFound, !retryable, "resource not found", !details},
	CodeConflict:     {http.StatusConflict, !retryable, "conflict detected", !details},
	CodeIdempotency:  {http.StatusConflict, !retryable, "idempotency key reused", details},
	CodeRateLimit:    {http.StatusTooManyRequests, !retryable, "rate limit exceeded", !details},
	CodeInternal:     {http.StatusInternalServerError, retryable, "internal server error", !details},
	CodeDependency:   {http.StatusServiceUnavailable, retryable, "dependency unavailable", details},
	CodeMalformed:    {http.StatusBadGateway, !retryable, "malformed upstream response", details},
	CodeClosed:       {http.StatusConflict, !retryable, "resource closed", !details},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// FromStatus maps a cart service reply status back to a code. Any 5xx is a
// dependency failure and any unlisted 4xx is treated as a rejected request.
func FromStatus(status int) Code {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimit
	}
	if status >= http.StatusInternalServerError {
		return CodeDependency
	}
	return CodeValidation
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
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
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Retryable reports whether the error's code is marked retryable. Untyped
// errors are treated as transport failures and therefore retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.Code()).Retryable
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
