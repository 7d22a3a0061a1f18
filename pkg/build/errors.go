package build

import (
	"errors"
	"fmt"
)

// Sentinel errors for build record operations.
var (
	// ErrInvalidField indicates an unknown field name or a wrongly typed value
	ErrInvalidField = errors.New("invalid build field")

	// ErrInvalidTransition indicates a status change the lifecycle does not allow
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidFieldError reports a schema violation on a build record. It is
// always returned to the caller and never swallowed.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return e.Reason
}

// Is lets errors.Is match ErrInvalidField
func (e *InvalidFieldError) Is(target error) bool {
	return target == ErrInvalidField
}

func unknownField(name string) error {
	return &InvalidFieldError{
		Field:  name,
		Reason: fmt.Sprintf("Model \"Build\" doesn't have field %q", name),
	}
}

func wrongType(name, kind string) error {
	return &InvalidFieldError{
		Field:  name,
		Reason: fmt.Sprintf("Column %q must be %s.", name, kind),
	}
}
