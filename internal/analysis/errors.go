package analysis

import (
	"errors"
	"fmt"
)

// Error kinds reported by the computational core. Callers match them with errors.Is.
var (
	// ErrInvalidParameter is returned for non-positive windows, horizons and similar bad arguments.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInsufficientData is returned when a series is too short for the requested computation.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNonConvergence is returned when a forecast model cannot be fitted.
	ErrNonConvergence = errors.New("model did not converge")
)

// ValidationError represents an error occurring during parameter validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ValidationError against ErrInvalidParameter.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidParameter
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
//
// Parameters:
//   - field: The name of the offending parameter.
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(field string, format string, args ...interface{}) error {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func insufficientDataf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInsufficientData, fmt.Sprintf(format, args...))
}

func nonConvergencef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNonConvergence, fmt.Sprintf(format, args...))
}

func requirePositive(field string, value int) error {
	if value <= 0 {
		return NewValidationErrorf(field, "must be >= 1, got %d", value)
	}
	return nil
}
