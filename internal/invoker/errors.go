package invoker

import (
	"errors"
	"fmt"
)

// Common errors returned by invokers
var (
	// ErrPermanent marks failures that retrying cannot fix
	ErrPermanent = errors.New("permanent invocation failure")

	// ErrUnknownRequestType is returned when no handler exists for a request type
	ErrUnknownRequestType = fmt.Errorf("%w: unknown request type", ErrPermanent)

	// ErrInvalidResponse is returned when the model response cannot be parsed or is malformed
	ErrInvalidResponse = fmt.Errorf("%w: invalid response from language model", ErrPermanent)

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = fmt.Errorf("%w: content blocked by language model safety filters", ErrPermanent)

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient invocation failure")

	// ErrInvalidConfig is returned when the invoker configuration is invalid
	ErrInvalidConfig = errors.New("invalid invoker configuration")
)

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
