// Package delivery defines the contract between event builders and the HTTP
// poster: the Poster interface, the per-attempt outcome classification, the
// retry backoff policy and the errors surfaced to callers.
//
// Attempts are classified as:
//
//	2xx                      -> Success (body decoded as JSON)
//	4xx                      -> NonRetryable (status and body surfaced verbatim)
//	5xx or transport fault   -> Retryable (backoff, then next attempt)
//
// A retryable failure on the last allowed attempt becomes an
// *ExhaustedRetriesError wrapping the last cause.
package delivery
