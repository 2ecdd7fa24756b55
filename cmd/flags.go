package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/conneroisu/plantctl/internal/batch"
	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/conneroisu/plantctl/internal/renderer"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AddFlagValidation wraps a flag so that bad values are rejected while the
// command line is parsed, before any command runs.
func AddFlagValidation(flags *pflag.FlagSet, flagName string, validator func(string) error) {
	flag := flags.Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:       flag.Value,
		validator:   validator,
		originalSet: flag.Value.Set,
	}
}

type validatingValue struct {
	pflag.Value
	validator   func(string) error
	originalSet func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.originalSet(val)
}

// ValidateConcurrency accepts positive integers.
func ValidateConcurrency(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return plerrors.NewValidationError(plerrors.ErrCodeInvalidConcurrency,
			fmt.Sprintf("concurrency must be an integer, got %q", s))
	}
	if n < 1 {
		return plerrors.NewValidationError(plerrors.ErrCodeInvalidConcurrency,
			fmt.Sprintf("concurrency must be at least 1, got %d", n))
	}
	return nil
}

// ValidatePolicy accepts fail-fast and collect-all.
func ValidatePolicy(s string) error {
	_, err := batch.ParsePolicy(s)
	return err
}

// ValidateFormat accepts any renderer output format name.
func ValidateFormat(s string) error {
	_, err := renderer.ParseFormat(s)
	return err
}

// ValidateTimeout accepts non-negative Go durations.
func ValidateTimeout(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return plerrors.NewValidationError(plerrors.ErrCodeInvalidFormat,
			fmt.Sprintf("timeout must be a non-negative duration such as 30s, got %q", s))
	}
	return nil
}

// flagErrorFunc marks flag parsing failures as validation errors so they map
// to the usage exit code.
func flagErrorFunc(cmd *cobra.Command, err error) error {
	if plerrors.IsValidation(err) {
		return err
	}
	return plerrors.NewValidationError(plerrors.ErrCodeInvalidFormat, err.Error())
}
