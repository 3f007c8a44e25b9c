package provider

import (
	"errors"
	"fmt"
	"maps"
)

// Gateway response codes
const (
	CodeSuccess     = "00000000"
	CodePending     = "00000100"
	CodeSystemError = "SYSTEM_ERROR"
)

// ErrUnknownOperation is returned when an operation has no registered request kind
var ErrUnknownOperation = errors.New("operation is not registered")

// ValidationError reports malformed caller input. It never reaches the transport.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError wraps a network level failure talking to the gateway
type TransportError struct {
	Operation string
	Cause     error
}

func (e *TransportError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("transport failed: %v", e.Cause)
	}
	return fmt.Sprintf("transport failed for %s: %v", e.Operation, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// APIError is raised when the gateway answers with a code outside the accept-set
// or with no usable body. It keeps the raw response for diagnostics.
type APIError struct {
	Code        string
	Description string
	raw         map[string]any
}

// NewAPIError creates an APIError holding a copy of raw
func NewAPIError(code, description string, raw map[string]any) *APIError {
	return &APIError{
		Code:        code,
		Description: description,
		raw:         maps.Clone(raw),
	}
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("gateway error %s", e.Code)
	}
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Description)
}

// Raw returns a copy of the response that caused the error
func (e *APIError) Raw() map[string]any {
	return maps.Clone(e.raw)
}

// SystemErrorResponse synthesizes a response mapping for replies that carried
// no structured body.
func SystemErrorResponse(reason string) map[string]any {
	return map[string]any{
		"resp_code": CodeSystemError,
		"resp_desc": reason,
	}
}
