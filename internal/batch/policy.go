package batch

import (
	"fmt"
	"strings"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
)

// Policy selects how item failures are handled.
type Policy int

const (
	// FailFast aborts delivery at the lowest failing index and returns its
	// error. It is the zero value.
	FailFast Policy = iota
	// CollectAll lets every item run and defers to an Aggregator.
	CollectAll
)

// String returns the flag spelling of the policy.
func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case CollectAll:
		return "collect-all"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses "fail-fast" or "collect-all".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-fast", "failfast":
		return FailFast, nil
	case "collect-all", "collectall":
		return CollectAll, nil
	default:
		return FailFast, plerrors.NewValidationError(plerrors.ErrCodeInvalidPolicy,
			fmt.Sprintf("unknown failure policy %q (fail-fast, collect-all)", s))
	}
}
