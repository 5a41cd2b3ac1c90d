package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrExperimentNotFound = fmt.Errorf("%w: experiment", ErrNotFound)
	ErrTemplateNotFound   = fmt.Errorf("%w: template", ErrNotFound)
	ErrUnknownVariant     = fmt.Errorf("%w: variant", ErrNotFound)
	ErrUnknownCohort      = fmt.Errorf("%w: cohort definition", ErrNotFound)

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotRunning        = fmt.Errorf("%w: not running", ErrInvalidTransition)
	ErrTerminalState     = fmt.Errorf("%w: experiment is in a terminal state", ErrInvalidTransition)
	ErrBatchSetup        = errors.New("batch execution setup failed")

	// Caller misuse
	ErrTooFewVariants    = errors.New("experiment requires at least two variants")
	ErrDuplicateVariant  = errors.New("duplicate variant id")
	ErrLengthMismatch    = errors.New("observed and expected frequencies must have same length")
	ErrUnknownTestFamily = errors.New("unknown test family")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrPolicyRejected    = errors.New("rejected by policy validator")
)

// NewNotFoundError names the missing id. kind is one of the not-found
// sentinels above, so errors.Is matches both kind and ErrNotFound.
func NewNotFoundError(kind error, id string) error {
	return fmt.Errorf("%w: %s", kind, id)
}

// NewValidationError reports an invalid caller-supplied parameter
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, field, reason)
}

// NewTransitionError reports a lifecycle operation attempted from the wrong state
func NewTransitionError(op string, id ExperimentID, status string) error {
	return fmt.Errorf("%w: cannot %s experiment %s in status %s", ErrInvalidTransition, op, id, status)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTransitionError(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrTooFewVariants) ||
		errors.Is(err, ErrDuplicateVariant) ||
		errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrUnknownTestFamily)
}

func IsPolicyError(err error) bool {
	return errors.Is(err, ErrPolicyRejected)
}
