package bkt

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is matched by every *InvalidParameterError.
// Use errors.Is to check: errors.Is(err, bkt.ErrInvalidParameter)
var ErrInvalidParameter = errors.New("bkt: invalid parameter")

// InvalidParameterError reports a parameter, prior or observation field
// outside its valid domain. No state is produced when it is returned.
type InvalidParameterError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("bkt: invalid %s = %g: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

func invalid(field string, value float64, reason string) error {
	return &InvalidParameterError{Field: field, Value: value, Reason: reason}
}
