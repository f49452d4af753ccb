package core

import "fmt"

// The turn pipeline reports failures in four categories. The API layer owns
// the mapping to HTTP status codes; nothing below it knows about HTTP.

// ValidationError marks bad caller input. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError marks a conversation that doesn't exist for the caller. A
// chat owned by someone else reports identically to one that never existed.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// UpstreamError marks a failure in one of the external collaborators: the
// generator, the retriever, or the conversation store. Op names which one.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func Upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

func Upstreamf(op, format string, args ...any) error {
	return &UpstreamError{Op: op, Err: fmt.Errorf(format, args...)}
}
