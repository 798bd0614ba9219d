package delivery

import (
	"errors"
	"fmt"
)

var (
	// ErrNonRetryable matches terminal failures that were not retried.
	ErrNonRetryable = errors.New("non-retryable delivery failure")
	// ErrExhausted matches failures that used up every attempt.
	ErrExhausted = errors.New("delivery attempts exhausted")
)

// HTTPError carries a non-2xx response. Body is the response text, verbatim.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.StatusCode, e.Body)
}

// Retryable reports whether the status is a server-side failure.
func (e *HTTPError) Retryable() bool { return ClassifyStatus(e.StatusCode) == Retryable }

// Is lets errors.Is(err, ErrNonRetryable) match 4xx responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNonRetryable && !e.Retryable()
}

// DecodeError is returned when a 2xx body is not valid JSON. The backend
// accepted the request, so it is never retried.
type DecodeError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode %d response: %v (body: %s)", e.Endpoint, e.StatusCode, e.Err, e.Body)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrNonRetryable }

// ExhaustedRetriesError is the terminal form of a retryable failure.
type ExhaustedRetriesError struct {
	Endpoint string
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Endpoint, e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }

func (e *ExhaustedRetriesError) Is(target error) bool { return target == ErrExhausted }

// StatusCode extracts the HTTP status carried by err, or 0 for transport faults.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return 0
}
