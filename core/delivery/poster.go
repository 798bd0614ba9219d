package delivery

import (
	"context"
	"net/url"
)

// Response is a decoded 2xx body. Non-object JSON is stored under "data".
type Response map[string]any

// Poster delivers JSON documents to the backend with bounded retries.
type Poster interface {
	// PostJSON posts payload to path. A non-empty idemKey is sent on every
	// attempt so the backend can collapse duplicates.
	PostJSON(ctx context.Context, path string, payload any, idemKey string) (Response, error)
	// GetJSON fetches path with the given query using the same retry policy.
	GetJSON(ctx context.Context, path string, query url.Values) (Response, error)
}

// Header names understood by the backend.
const (
	HeaderAPIKey         = "X-OCPP-Key"
	HeaderIdempotencyKey = "X-Idempotency-Key"
)
