package errors

import (
	"math"
	"strings"
)

// InvalidChoice returns an INVALID_CONFIG error for a selector value that is
// not in the allowed set. The message names the selector kind, the rejected
// value and every accepted value so that callers can surface it verbatim.
//
//	errors.InvalidChoice("solver", "lp", []string{"mip", "graph"})
//	// INVALID_CONFIG: unknown solver "lp" (must be one of: mip, graph)
func InvalidChoice(kind, value string, allowed []string) *Error {
	return New(ErrCodeInvalidConfig, "unknown %s %q (must be one of: %s)", kind, value, strings.Join(allowed, ", "))
}

// ValidateFinite rejects NaN and infinite values for the named parameter.
func ValidateFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return New(ErrCodeInvalidConfig, "%s must be a finite number, got %v", name, v)
	}
	return nil
}

// ValidatePositive rejects values that are not strictly positive and finite.
func ValidatePositive(name string, v float64) error {
	if err := ValidateFinite(name, v); err != nil {
		return err
	}
	if v <= 0 {
		return New(ErrCodeInvalidConfig, "%s must be positive, got %v", name, v)
	}
	return nil
}

// ValidateNonNegative rejects negative or non-finite values.
func ValidateNonNegative(name string, v float64) error {
	if err := ValidateFinite(name, v); err != nil {
		return err
	}
	if v < 0 {
		return New(ErrCodeInvalidConfig, "%s must not be negative, got %v", name, v)
	}
	return nil
}
