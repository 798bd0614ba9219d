package delivery

import (
	"fmt"
	"net/http"
)

// Kind tags the result of a single attempt.
type Kind int

const (
	Success Kind = iota
	NonRetryable
	Retryable
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case NonRetryable:
		return "non_retryable"
	case Retryable:
		return "retryable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the classified result of one attempt. Exactly one of Body or
// Err is meaningful depending on Kind.
type Outcome struct {
	Kind       Kind
	StatusCode int
	Body       Response
	Err        error
}

// Succeeded wraps a decoded body.
func Succeeded(status int, body Response) Outcome {
	return Outcome{Kind: Success, StatusCode: status, Body: body}
}

// Failed wraps a terminal failure.
func Failed(status int, err error) Outcome {
	return Outcome{Kind: NonRetryable, StatusCode: status, Err: err}
}

// Retry wraps a failure worth another attempt.
func Retry(status int, err error) Outcome {
	return Outcome{Kind: Retryable, StatusCode: status, Err: err}
}

// ClassifyStatus maps an HTTP status code to an attempt kind. Codes outside
// the 2xx/4xx/5xx ranges (1xx, 3xx left unfollowed) are treated as terminal.
func ClassifyStatus(code int) Kind {
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return Success
	case code >= http.StatusInternalServerError && code < 600:
		return Retryable
	default:
		return NonRetryable
	}
}
