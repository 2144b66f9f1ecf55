package engine

import "fmt"

// InvalidStateError indicates an operation whose precondition on current
// task, assignment, user or organization state does not hold.
type InvalidStateError struct {
	Reason string
}

func (e InvalidStateError) Error() string {
	return e.Reason
}

func InvalidState(format string, args ...any) InvalidStateError {
	return InvalidStateError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError indicates malformed or incomplete input.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

func Validation(format string, args ...any) ValidationError {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}
