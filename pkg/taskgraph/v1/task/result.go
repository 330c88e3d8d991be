package task

import "fmt"

// Result is the explicit outcome of a task body.
type Result struct {
	err error
}

// Success returns a successful Result.
func Success() Result { return Result{} }

// Failure returns a failed Result carrying err. A nil err is replaced with a
// generic error so that the Result still reports failure.
func Failure(err error) Result {
	if err == nil {
		err = fmt.Errorf("task failed without an error")
	}
	return Result{err: err}
}

// Failuref is Failure with a formatted error.
func Failuref(format string, args ...interface{}) Result {
	return Result{err: fmt.Errorf(format, args...)}
}

// FromError returns Success for a nil err and Failure otherwise.
func FromError(err error) Result {
	if err == nil {
		return Success()
	}
	return Failure(err)
}

func (r Result) Failed() bool { return r.err != nil }
func (r Result) Err() error   { return r.err }
