package result

import "fmt"

// Failure describes why an operation produced no value. It satisfies the
// error interface so it can be logged, but pipeline code passes it around
// inside a Result rather than returning it.
type Failure struct {
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"`
}

func (f Failure) Error() string {
	if f.Code == "" {
		return f.Reason
	}
	return fmt.Sprintf("%s (%s)", f.Reason, f.Code)
}

// Result is either a value (Ok) or a Failure (Err), never both.
// The zero value is an Err with an empty reason.
type Result[T any] struct {
	data    T
	failure Failure
	ok      bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{data: v, ok: true}
}

// Err builds a failed Result with the given reason and optional code.
func Err[T any](reason, code string) Result[T] {
	return Result[T]{failure: Failure{Reason: reason, Code: code}}
}

// FromFailure builds a failed Result from an existing Failure.
func FromFailure[T any](f Failure) Result[T] {
	return Result[T]{failure: f}
}

// IsOk reports whether the Result carries a value.
func (r Result[T]) IsOk() bool { return r.ok }

// Value returns the carried value and true, or the zero value and false.
func (r Result[T]) Value() (T, bool) {
	return r.data, r.ok
}

// Failure returns the failure details. It is the zero Failure for Ok results.
func (r Result[T]) Failure() Failure {
	return r.failure
}

// Map transforms the value of an Ok result, passing failures through untouched.
func Map[A, B any](r Result[A], fn func(A) B) Result[B] {
	if !r.ok {
		return Result[B]{failure: r.failure}
	}
	return Ok(fn(r.data))
}
