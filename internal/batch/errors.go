package batch

import (
	"errors"
	"fmt"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
)

// ErrInvalidConcurrency matches (via errors.Is) the validation error returned
// when Options.Concurrency is below 1.
var ErrInvalidConcurrency = plerrors.NewValidationError(
	plerrors.ErrCodeInvalidConcurrency, "concurrency must be at least 1")

func invalidConcurrency(n int) error {
	return plerrors.NewValidationError(plerrors.ErrCodeInvalidConcurrency,
		fmt.Sprintf("concurrency must be at least 1, got %d", n))
}

// Failure records one item whose work function failed.
type Failure struct {
	Index int
	Item  any
	Err   error
}

// Error implements the error interface so failures can be combined directly.
func (f Failure) Error() string {
	return fmt.Sprintf("item %d: %v", f.Index, f.Err)
}

// Unwrap returns the work function's error.
func (f Failure) Unwrap() error {
	return f.Err
}

// EngineError wraps an error returned or a panic raised by the deliver
// callback. It signals a consumer bug rather than an item failure.
type EngineError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("deliver failed at index %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying cause error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsEngineError reports whether err came from the deliver callback.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}
