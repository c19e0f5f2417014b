package value

import "errors"

var (
	// ErrValueNotFound is returned when a value ID does not exist.
	ErrValueNotFound = errors.New("value not found")

	// ErrInvalidValue matches every *ValidationError.
	ErrInvalidValue = errors.New("invalid value")
)

// ValidationError describes the first field that failed validation.
// It matches ErrInvalidValue with errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports whether target is ErrInvalidValue.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidValue
}
