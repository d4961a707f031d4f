// Package outcome provides a small tagged result type for operations whose
// failures are part of normal control flow rather than fatal errors.
package outcome

import "fmt"

// Outcome carries either a success value or a failure error, never both.
// Callers inspect the arm with IsOK/IsErr before reading Value or Err.
type Outcome[T any] struct {
	value T
	err   error
	ok    bool
}

// OK wraps a success value.
func OK[T any](value T) Outcome[T] {
	return Outcome[T]{value: value, ok: true}
}

// Err wraps a failure. A nil err is normalized to a generic failure so the
// failure arm always carries a non-nil error.
func Err[T any](err error) Outcome[T] {
	if err == nil {
		err = fmt.Errorf("unspecified failure")
	}
	return Outcome[T]{err: err}
}

// Errf wraps a formatted failure.
func Errf[T any](format string, args ...any) Outcome[T] {
	return Err[T](fmt.Errorf(format, args...))
}

// IsOK reports whether the outcome is the success arm.
func (o Outcome[T]) IsOK() bool { return o.ok }

// IsErr reports whether the outcome is the failure arm.
func (o Outcome[T]) IsErr() bool { return !o.ok }

// Value returns the success value, or the zero value on the failure arm.
func (o Outcome[T]) Value() T { return o.value }

// Err returns the failure error, or nil on the success arm.
func (o Outcome[T]) Err() error {
	if o.ok {
		return nil
	}
	return o.err
}

// Unwrap returns the value and error in conventional Go order.
func (o Outcome[T]) Unwrap() (T, error) {
	return o.value, o.Err()
}

// String renders the outcome for logs and test failures.
func (o Outcome[T]) String() string {
	if o.ok {
		return fmt.Sprintf("ok(%v)", o.value)
	}
	return fmt.Sprintf("err(%v)", o.err)
}
