package batch

import (
	"context"

	"github.com/conneroisu/plantctl/internal/logging"
	"go.uber.org/multierr"
)

// Aggregator decides the outcome of a CollectAll batch from its failures,
// ordered by index. It is only called with a non-empty slice.
type Aggregator func(failures []Failure) error

// FirstError returns the error of the lowest failing index. It is the
// default Aggregator.
func FirstError(failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	return failures[0].Err
}

// LastError returns the error of the highest failing index.
func LastError(failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	return failures[len(failures)-1].Err
}

// JoinErrors combines every failure into one error. Each part keeps its
// index and still matches the original error with errors.Is.
func JoinErrors(failures []Failure) error {
	var combined error
	for _, f := range failures {
		combined = multierr.Append(combined, f)
	}
	return combined
}

// LogAndSuppress returns an Aggregator that logs each failure and reports
// success.
func LogAndSuppress(logger logging.Logger) Aggregator {
	return func(failures []Failure) error {
		for _, f := range failures {
			logger.Warn(context.Background(), f.Err, "Item failed", "index", f.Index, "item", f.Item)
		}
		return nil
	}
}
