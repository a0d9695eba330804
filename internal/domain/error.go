package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnavailable      = errors.New("service unavailable")
	ErrGateway          = errors.New("payment gateway error")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrAlreadyPaid      = errors.New("purchase already paid")
	ErrRateLimited      = errors.New("too many requests")
	ErrUnauthorized     = errors.New("unauthorized")

	// Storage errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)

// ReasonError carries a stable machine-readable reason next to one of the
// sentinel kinds above. errors.Is matches both the kind and the wrapped cause.
type ReasonError struct {
	Kind    error
	Reason  string
	Hint    string
	Details map[string]any
	Cause   error
}

func NewReason(kind error, reason, hint string) *ReasonError {
	return &ReasonError{Kind: kind, Reason: reason, Hint: hint}
}

func (e *ReasonError) With(key string, v any) *ReasonError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = v
	return e
}

func (e *ReasonError) Wrap(cause error) *ReasonError {
	e.Cause = cause
	return e
}

func (e *ReasonError) Error() string {
	msg := e.Reason
	if e.Kind != nil {
		msg = fmt.Sprintf("%s: %s", e.Kind.Error(), e.Reason)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ReasonError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// AsReason extracts the outermost ReasonError, if any.
func AsReason(err error) (*ReasonError, bool) {
	var re *ReasonError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
