package validation

import (
	oberrors "github.com/vnykmshr/outbound/pkg/common/errors"
)

// ValidatePositive rejects integer values that are zero or negative.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return oberrors.NewValidationError(module, field, value, "must be positive").
			WithHint("use a value greater than zero")
	}
	return nil
}

// ValidatePositiveFloat is ValidatePositive for float64 values.
func ValidatePositiveFloat(module, field string, value float64) error {
	if value <= 0 {
		return oberrors.NewValidationError(module, field, value, "must be positive").
			WithHint("use a value greater than zero")
	}
	return nil
}

// ValidateNonNegative rejects negative float64 values. Zero is allowed.
func ValidateNonNegative(module, field string, value float64) error {
	if value < 0 {
		return oberrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use zero or a positive value")
	}
	return nil
}

// ValidateNotNil rejects nil interface values. A typed nil pointer makes
// the interface non-nil and passes.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return oberrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a non-nil " + field)
	}
	return nil
}

// ValidateNotEmpty rejects empty strings.
func ValidateNotEmpty(module, field, value string) error {
	if value == "" {
		return oberrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("set " + field + " to a non-empty string")
	}
	return nil
}
