package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/ocppbridge/core/delivery"
	"github.com/kilianp07/ocppbridge/core/logger"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
)

// Backend endpoints, relative to the API base URL.
const (
	EndpointBootNotification   = "boot-notification"
	EndpointAuthorize          = "authorize"
	EndpointStartTransaction   = "start-transaction"
	EndpointMeterValues        = "meter-values"
	EndpointStopTransaction    = "stop-transaction"
	EndpointStatusNotification = "status-notification"
	EndpointHeartbeat          = "heartbeat"
)

// DefaultStopReason is sent when StopTransaction.Reason is empty.
const DefaultStopReason = "Local"

var (
	// ErrMissingField is returned before any request is sent when a required
	// argument is empty.
	ErrMissingField = errors.New("missing required field")
)

// Bridge builds and sends station events.
type Bridge struct {
	poster  delivery.Poster
	station model.StationIdentity
	now     func() time.Time
	log     logger.Logger
	meters  coremetrics.MeterRecorder
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithClock overrides the time source used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMeterRecorder mirrors delivered meter frames to r.
func WithMeterRecorder(r coremetrics.MeterRecorder) Option {
	return func(b *Bridge) { b.meters = r }
}

// New returns a Bridge for the given station.
func New(p delivery.Poster, station model.StationIdentity, opts ...Option) (*Bridge, error) {
	if p == nil {
		return nil, fmt.Errorf("poster is required")
	}
	if err := station.Validate(); err != nil {
		return nil, fmt.Errorf("station identity: %w", err)
	}
	b := &Bridge{
		poster:  p,
		station: station,
		now:     time.Now,
		log:     logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Station returns the injected identity.
func (b *Bridge) Station() model.StationIdentity { return b.station }

func (b *Bridge) timestamp(at time.Time) string {
	return model.TimestampOrNow(at, b.now)
}

func (b *Bridge) send(ctx context.Context, endpoint string, payload any, idemKey string) (delivery.Response, error) {
	b.log.Debugw("sending event", map[string]any{
		"endpoint":    endpoint,
		"station":     b.station.Code,
		"idempotency": idemKey,
	})
	return b.poster.PostJSON(ctx, endpoint, payload, idemKey)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return nil
}
