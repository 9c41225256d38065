package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a unique key is already taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAuthRequired is returned when an operation needs a known account.
	ErrAuthRequired = errors.New("authentication required")
	// ErrConflict indicates a versioned write against a stale version.
	ErrConflict = errors.New("version conflict")
	// ErrValidation indicates malformed input rejected before any store call.
	ErrValidation = errors.New("validation failed")
	// ErrUpstream indicates the commerce store returned an error.
	ErrUpstream = errors.New("upstream failure")
	// ErrInvalidTransition indicates a state machine transition that is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAccountAlreadyExists is returned when signup hits a taken email.
	ErrAccountAlreadyExists = errors.New("account already exists")
	// ErrCartNotAssignable is returned when an anonymous cart can no longer be claimed.
	ErrCartNotAssignable = errors.New("cart not assignable")
)

// ConflictError carries the versions involved in a failed optimistic write.
type ConflictError struct {
	Entity   string
	ID       string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	if e.Actual > 0 {
		return fmt.Sprintf("%s %s: expected version %d, current version %d", e.Entity, e.ID, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s %s: version %d is stale", e.Entity, e.ID, e.Expected)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflict builds a ConflictError. actual may be zero when unknown.
func NewConflict(entity, id string, expected, actual int) error {
	return &ConflictError{Entity: entity, ID: id, Expected: expected, Actual: actual}
}

// ValidationError describes a rejected input field.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidation builds a ValidationError with the InvalidInput code.
func NewValidation(field, message string) error {
	return &ValidationError{Code: "InvalidInput", Field: field, Message: message}
}

// NewValidationCode builds a ValidationError with an explicit machine-readable code.
func NewValidationCode(code, field, message string) error {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// UpstreamError wraps a commerce store failure with its diagnostic details.
type UpstreamError struct {
	Status  int
	Code    string
	Message string
	Body    string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream %s: %s", e.Code, e.Message)
	}
	return "upstream: " + e.Message
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

// TransitionError reports a rejected state machine move.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// NewTransition builds a TransitionError.
func NewTransition(entity, from, to string) error {
	return &TransitionError{Entity: entity, From: from, To: to}
}
