package domain

// Result is the outcome of an asynchronous operation: either a value or a
// tagged error, never both.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps an error.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Get returns the value and the error.
func (r Result[T]) Get() (T, error) {
	return r.Value, r.Err
}

// Succeeded reports whether the result holds a value.
func (r Result[T]) Succeeded() bool {
	return r.Err == nil
}
