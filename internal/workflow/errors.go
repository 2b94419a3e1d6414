package workflow

import (
	"errors"
	"fmt"

	"github.com/garnizeh/taosdlc/internal/models"
)

// Error taxonomy of the workflow core. Callers match with errors.Is.
var (
	ErrNotFound                 = errors.New("not found")
	ErrNotAuthorized            = errors.New("not authorized")
	ErrAlreadyResolved          = errors.New("approval already resolved")
	ErrDuplicateApprovalRequest = errors.New("duplicate approval request")
	ErrAlreadyAccepted          = errors.New("ai interaction already accepted")
	ErrInvalidTransition        = errors.New("invalid transition")
	ErrValidation               = errors.New("validation error")
)

// TransitionError describes a rejected phase status change.
type TransitionError struct {
	Current   models.PhaseStatus
	Requested models.PhaseStatus
	Reason    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.Current, e.Requested, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func transitionErr(current, requested models.PhaseStatus, reason string) error {
	return &TransitionError{Current: current, Requested: requested, Reason: reason}
}

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

func notAuthorized(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotAuthorized)
}
