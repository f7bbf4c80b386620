package state

import (
	"errors"
	"fmt"
)

// Plan-fatal evaluation errors. Any of these ends validation of the current
// plan, which is then reported as undecided.
var (
	ErrUndefinedTerm          = errors.New("undefined term access")
	ErrUnsupportedExpression  = errors.New("unsupported expression")
	ErrUnrecognisedExpression = errors.New("unrecognised expression")
)

// IsFatal reports whether err ends validation of the current plan.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUndefinedTerm) ||
		errors.Is(err, ErrUnsupportedExpression) ||
		errors.Is(err, ErrUnrecognisedExpression)
}

func unrecognised(node any) error {
	return fmt.Errorf("%w: %T", ErrUnrecognisedExpression, node)
}
