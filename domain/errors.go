package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized covers missing, expired and rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for unknown tasks, subtasks and attachments.
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects input before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// GatewayError reports a failed remote call: either a transport failure
// (Status == 0) or a non-2xx response.
type GatewayError struct {
	Op     string
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.Status, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Temporary reports whether resubmitting the same request may succeed.
func (e *GatewayError) Temporary() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	}
	return false
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
