// Package apierr defines the gateway's error taxonomy: a typed error that
// carries the HTTP status, machine-readable code, and recoverability that
// the HTTP surface turns into the client-facing error envelope.
package apierr

import (
	"errors"
	"fmt"
)

// GatewayError is the typed error every gateway component should return
// for conditions a client needs to distinguish. Internal, unexpected
// errors are wrapped as INTERNAL_ERROR at the HTTP boundary instead of
// being constructed directly.
type GatewayError struct {
	Code        string
	Message     string
	Status      int
	Recoverable bool
	Meta        map[string]any

	cause error
}

func (e *GatewayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.cause }

// WithMeta attaches structured metadata to the error and returns it for
// chaining at the call site.
func (e *GatewayError) WithMeta(meta map[string]any) *GatewayError {
	e.Meta = meta
	return e
}

// WithCause wraps an underlying error for %w-style unwrapping while
// keeping the taxonomy's public Code/Message/Status stable.
func (e *GatewayError) WithCause(cause error) *GatewayError {
	e.cause = cause
	return e
}

func newErr(status int, code, message string, recoverable bool) *GatewayError {
	return &GatewayError{Status: status, Code: code, Message: message, Recoverable: recoverable}
}

func NewBadRequest(message string) *GatewayError {
	return newErr(400, "BAD_REQUEST", message, true)
}

func NewUnauthorized(message string) *GatewayError {
	return newErr(401, "UNAUTHORIZED", message, true)
}

func NewForbidden(code, message string) *GatewayError {
	if code == "" {
		code = "FORBIDDEN"
	}
	return newErr(403, code, message, false)
}

func NewNotFound(resourceType, resourceName string) *GatewayError {
	return newErr(404, "NOT_FOUND", fmt.Sprintf("%s %q not found", resourceType, resourceName), true)
}

func NewConflict(code, message string) *GatewayError {
	if code == "" {
		code = "CONFLICT"
	}
	return newErr(409, code, message, true)
}

func NewUnprocessable(message string) *GatewayError {
	return newErr(422, "UNPROCESSABLE", message, true)
}

func NewDisabled(code, message string) *GatewayError {
	if code == "" {
		code = "DISABLED"
	}
	return newErr(503, code, message, true)
}

func NewInternal(code string, cause error) *GatewayError {
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	message := "internal error"
	if cause != nil {
		message = cause.Error()
	}
	return newErr(500, code, message, false).WithCause(cause)
}

func NewRateLimited(message string) *GatewayError {
	return newErr(429, "RATE_LIMIT", message, true)
}

// As recovers a *GatewayError from err's chain, if any.
func As(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// Sentinel errors for conditions internal callers check with errors.Is
// rather than constructing a full GatewayError (e.g. registry lookups);
// the HTTP surface maps them to status codes in writeError.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrNoServiceHealthy = errors.New("no services available")
)
