package config

import (
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/ocppbridge/auth"
	"github.com/kilianp07/ocppbridge/core/delivery"
	"github.com/kilianp07/ocppbridge/infra/poster"
)

// DefaultBaseURL is the backend used when none is configured.
const DefaultBaseURL = "http://127.0.0.1/api/ocpp"

// APIConfig holds the backend connection settings.
type APIConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	MaxAttempts    int    `json:"max_attempts"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// BaseDelayMS is the first backoff delay in milliseconds. Fractions are
	// kept and an explicit zero disables the wait between attempts.
	BaseDelayMS *float64 `json:"base_delay_ms"`
	// OAuth adds a client-credentials bearer token to every request.
	OAuth auth.Conf `json:"oauth"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = delivery.DefaultBackoff.MaxAttempts
	}
	if c.BaseDelayMS == nil {
		ms := float64(delivery.DefaultBackoff.BaseDelay) / float64(time.Millisecond)
		c.BaseDelayMS = &ms
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = int(poster.DefaultTimeout / time.Second)
	}
}

// Validate checks mandatory fields.
func (c APIConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("api: max_attempts must be at least 1")
	}
	if ms := c.BaseDelayMS; ms != nil && (*ms < 0 || math.IsNaN(*ms) || math.IsInf(*ms, 0)) {
		return fmt.Errorf("api: base_delay_ms must be a finite, non-negative number")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("api: timeout_seconds must not be negative")
	}
	if c.OAuth.Enabled() && c.OAuth.TokenURL == "" {
		return fmt.Errorf("api: oauth.token_url is required with oauth.client_id")
	}
	return nil
}

// Poster converts the section to the poster configuration.
func (c APIConfig) Poster() poster.Config {
	return poster.Config{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay(),
		Timeout:     time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

// BaseDelay returns the configured base delay, or the default when unset.
func (c APIConfig) BaseDelay() time.Duration {
	if c.BaseDelayMS == nil {
		return delivery.DefaultBackoff.BaseDelay
	}
	return time.Duration(math.Round(*c.BaseDelayMS * float64(time.Millisecond)))
}

// PosterOptions returns the options implied by the section.
func (c APIConfig) PosterOptions() []poster.Option {
	if !c.OAuth.Enabled() {
		return nil
	}
	return []poster.Option{poster.WithAuthorizer(auth.NewClientCred(c.OAuth))}
}
