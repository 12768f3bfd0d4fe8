package provision

import (
	"errors"
	"fmt"

	"ocelbridge/internal/platform"
)

var (
	// ErrRemoteValidation marks a structured 400 on an update. The unit is
	// abandoned; siblings carry on.
	ErrRemoteValidation = errors.New("remote validation failed")
	// ErrRemoteTransport marks any other failed remote call.
	ErrRemoteTransport = errors.New("remote request failed")
)

// UnexpectedError is a panic recovered inside a unit.
type UnexpectedError struct {
	Phase string
	Unit  string
	Value any
	Stack []byte
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected failure in %s unit %s: %v", e.Phase, e.Unit, e.Value)
}

// classify wraps a platform error with its taxonomy sentinel.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) && apiErr.IsValidation() {
		return fmt.Errorf("%w: %w", ErrRemoteValidation, err)
	}
	return fmt.Errorf("%w: %w", ErrRemoteTransport, err)
}

// isAlreadyExists reports a create rejected because the entity exists.
func isAlreadyExists(err error) bool {
	var apiErr *platform.APIError
	return errors.As(err, &apiErr) && apiErr.IsAlreadyExists()
}
