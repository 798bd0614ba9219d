package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/ocppbridge/core/delivery"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/infra/logger"
)

// Config holds the backend connection settings.
type Config struct {
	BaseURL     string
	APIKey      string
	MaxAttempts int
	BaseDelay   time.Duration
	// Timeout bounds each attempt, including reading the response body.
	Timeout time.Duration
}

// DefaultTimeout is the per-attempt bound used when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// HTTPPoster implements delivery.Poster over net/http with bounded
// retries, exponential backoff and jitter. It is safe for concurrent use;
// concurrent deliveries share only the connection pool.
type HTTPPoster struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	policy  delivery.BackoffPolicy

	client    *http.Client
	owns      bool
	closeOnce sync.Once

	log    logger.Logger
	sink   coremetrics.MetricsSink
	auth   Authorizer
	sleep  func(context.Context, time.Duration) error
	jitter func() float64
}

// Authorizer adds credentials to an outgoing request, on top of the API key.
// auth.ClientCred satisfies it.
type Authorizer interface {
	SetAuthHeader(r *http.Request) error
}

var _ delivery.Poster = (*HTTPPoster)(nil)

// Option customizes an HTTPPoster.
type Option func(*HTTPPoster)

// WithHTTPClient injects a client. The poster never closes an injected client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPPoster) {
		if c != nil {
			p.client = c
			p.owns = false
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l logger.Logger) Option {
	return func(p *HTTPPoster) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics records deliveries and retries on sink.
func WithMetrics(sink coremetrics.MetricsSink) Option {
	return func(p *HTTPPoster) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithAuthorizer authenticates every attempt with a. A failure to obtain
// credentials is retried like a transport fault.
func WithAuthorizer(a Authorizer) Option {
	return func(p *HTTPPoster) {
		if a != nil {
			p.auth = a
		}
	}
}

// WithSleep replaces the backoff wait. The function must honour ctx.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(p *HTTPPoster) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithJitter replaces the random source; fn must return values in [0,1).
func WithJitter(fn func() float64) Option {
	return func(p *HTTPPoster) {
		if fn != nil {
			p.jitter = fn
		}
	}
}

// New validates cfg and builds a poster. Without WithHTTPClient the poster
// creates and owns its transport, released by Close.
func New(cfg Config, opts ...Option) (*HTTPPoster, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", cfg.BaseURL)
	}
	policy := delivery.BackoffPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = delivery.DefaultBackoff.MaxAttempts
	}
	if policy.BaseDelay < 0 {
		return nil, fmt.Errorf("base delay must not be negative")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &HTTPPoster{
		baseURL: base,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		policy:  policy,
		client:  &http.Client{Timeout: timeout},
		owns:    true,
		log:     logger.New("poster"),
		sink:    coremetrics.NopSink{},
		sleep:   sleepContext,
		jitter:  rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Policy returns the retry bounds in effect.
func (p *HTTPPoster) Policy() delivery.BackoffPolicy { return p.policy }

// Close releases the transport when the poster created it. Safe to call
// more than once.
func (p *HTTPPoster) Close() error {
	p.closeOnce.Do(func() {
		if p.owns {
			p.client.CloseIdleConnections()
		}
	})
	return nil
}

// PostJSON implements delivery.Poster.
func (p *HTTPPoster) PostJSON(ctx context.Context, path string, payload any, idemKey string) (delivery.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode payload: %w", endpointName(path), err)
	}
	return p.deliver(ctx, http.MethodPost, path, nil, body, idemKey)
}

// GetJSON implements delivery.Poster.
func (p *HTTPPoster) GetJSON(ctx context.Context, path string, query url.Values) (delivery.Response, error) {
	return p.deliver(ctx, http.MethodGet, path, query, nil, "")
}

func (p *HTTPPoster) deliver(ctx context.Context, method, path string, query url.Values, body []byte, idemKey string) (delivery.Response, error) {
	endpoint := endpointName(path)
	target := p.url(path, query)
	start := time.Now()
	for attempt := 1; ; attempt++ {
		out := p.attempt(ctx, method, target, endpoint, body, idemKey)
		switch out.Kind {
		case delivery.Success:
			p.record(endpoint, method, "success", out.StatusCode, attempt, idemKey, start)
			p.log.Debugf("%s %s delivered in %d attempt(s)", method, endpoint, attempt)
			return out.Body, nil
		case delivery.NonRetryable:
			p.record(endpoint, method, delivery.NonRetryable.String(), out.StatusCode, attempt, idemKey, start)
			p.log.Errorf("%s %s rejected: %v", method, endpoint, out.Err)
			return nil, out.Err
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}
		if p.policy.Exhausted(attempt) {
			p.record(endpoint, method, "exhausted", out.StatusCode, attempt, idemKey, start)
			p.log.Errorf("%s %s failed after %d attempts: %v", method, endpoint, attempt, out.Err)
			return nil, &delivery.ExhaustedRetriesError{Endpoint: endpoint, Attempts: attempt, Last: out.Err}
		}
		delay := p.policy.Delay(attempt, p.jitter())
		p.log.Warnf("%s %s attempt %d/%d failed: %v; retrying in %s", method, endpoint, attempt, p.policy.MaxAttempts, out.Err, delay)
		if rec, ok := p.sink.(coremetrics.RetryRecorder); ok {
			if err := rec.RecordRetry(coremetrics.RetryEvent{
				Endpoint:   endpoint,
				Attempt:    attempt,
				StatusCode: out.StatusCode,
				Delay:      delay,
				Time:       time.Now(),
			}); err != nil {
				p.log.Debugf("record retry: %v", err)
			}
		}
		if err := p.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}
	}
}

// attempt performs one request and classifies it.
func (p *HTTPPoster) attempt(ctx context.Context, method, target, endpoint string, body []byte, idemKey string) delivery.Outcome {
	actx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(actx, method, target, reader)
	if err != nil {
		return delivery.Failed(0, fmt.Errorf("%s: build request: %w", endpoint, err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(delivery.HeaderAPIKey, p.apiKey)
	if idemKey != "" {
		req.Header.Set(delivery.HeaderIdempotencyKey, idemKey)
	}
	if p.auth != nil {
		if err := p.auth.SetAuthHeader(req); err != nil {
			return delivery.Retry(0, fmt.Errorf("%s: authorize: %w", endpoint, err))
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return delivery.Retry(0, fmt.Errorf("%s: send: %w", endpoint, err))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return delivery.Retry(resp.StatusCode, fmt.Errorf("%s: read response: %w", endpoint, err))
	}

	switch delivery.ClassifyStatus(resp.StatusCode) {
	case delivery.Success:
		decoded, err := decodeBody(raw)
		if err != nil {
			return delivery.Failed(resp.StatusCode, &delivery.DecodeError{
				Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(raw), Err: err,
			})
		}
		return delivery.Succeeded(resp.StatusCode, decoded)
	case delivery.Retryable:
		return delivery.Retry(resp.StatusCode, &delivery.HTTPError{
			Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(raw),
		})
	default:
		return delivery.Failed(resp.StatusCode, &delivery.HTTPError{
			Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(raw),
		})
	}
}

func (p *HTTPPoster) record(endpoint, method, outcome string, status, attempts int, idemKey string, start time.Time) {
	err := p.sink.RecordDelivery(coremetrics.DeliveryEvent{
		Endpoint:   endpoint,
		Method:     method,
		Outcome:    outcome,
		StatusCode: status,
		Attempts:   attempts,
		Idempotent: idemKey != "",
		Latency:    time.Since(start),
		Time:       time.Now(),
	})
	if err != nil {
		p.log.Debugf("record delivery: %v", err)
	}
}

func (p *HTTPPoster) url(path string, query url.Values) string {
	u := p.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// decodeBody ignores the declared content type. An empty body decodes to an
// empty Response; numbers are kept as json.Number.
func decodeBody(raw []byte) (delivery.Response, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return delivery.Response{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if obj, ok := v.(map[string]any); ok {
		return delivery.Response(obj), nil
	}
	return delivery.Response{"data": v}, nil
}

func endpointName(path string) string {
	return strings.Trim(path, "/")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
