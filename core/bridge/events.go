package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/ocppbridge/core/delivery"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
)

// Boot describes the station firmware at power-up. Empty fields fall back to
// the station identity.
type Boot struct {
	Vendor   string
	Model    string
	Firmware string
	At       time.Time
}

// BootNotification announces the station to the backend.
func (b *Bridge) BootNotification(ctx context.Context, req Boot) (delivery.Response, error) {
	payload := model.BootNotificationPayload{
		StationCode: b.station.Code,
		Vendor:      firstNonEmpty(req.Vendor, b.station.Vendor),
		Model:       firstNonEmpty(req.Model, b.station.Model),
		Firmware:    firstNonEmpty(req.Firmware, b.station.Firmware),
		Timestamp:   b.timestamp(req.At),
	}
	return b.send(ctx, EndpointBootNotification, payload, "")
}

// Authorize asks the backend whether idTag may charge.
func (b *Bridge) Authorize(ctx context.Context, idTag string) (delivery.Response, error) {
	if err := required("idTag", idTag); err != nil {
		return nil, err
	}
	payload := model.AuthorizePayload{StationCode: b.station.Code, IDTag: idTag}
	return b.send(ctx, EndpointAuthorize, payload, "")
}

// StartTransaction reports the beginning of a charging session.
type StartTransaction struct {
	TransactionID  string
	IDTag          string
	MeterStartWh   int64
	At             time.Time
	IdempotencyKey string
}

// StartTransaction sends the session start on the configured connector.
func (b *Bridge) StartTransaction(ctx context.Context, req StartTransaction) (delivery.Response, error) {
	if err := required("transactionId", req.TransactionID); err != nil {
		return nil, err
	}
	if err := required("idTag", req.IDTag); err != nil {
		return nil, err
	}
	if req.MeterStartWh < 0 {
		return nil, fmt.Errorf("meterStart must not be negative, got %d", req.MeterStartWh)
	}
	payload := model.StartTransactionPayload{
		StationCode:   b.station.Code,
		Connector:     b.station.Connector,
		TransactionID: req.TransactionID,
		IDTag:         req.IDTag,
		MeterStart:    req.MeterStartWh,
		Timestamp:     b.timestamp(req.At),
	}
	return b.send(ctx, EndpointStartTransaction, payload, req.IdempotencyKey)
}

// MeterValues carries sampled frames for an ongoing transaction.
type MeterValues struct {
	TransactionID  string
	Frames         []model.MeterFrame
	IdempotencyKey string
}

// MeterValues sends frames in the given order. Frames without a timestamp are
// stamped with the current time.
func (b *Bridge) MeterValues(ctx context.Context, req MeterValues) (delivery.Response, error) {
	if err := required("transactionId", req.TransactionID); err != nil {
		return nil, err
	}
	if len(req.Frames) == 0 {
		return nil, fmt.Errorf("%w: meterValue", ErrMissingField)
	}
	frames := make([]model.MeterFrame, len(req.Frames))
	for i, f := range req.Frames {
		if f.Timestamp == "" {
			f.Timestamp = b.timestamp(time.Time{})
		}
		if f.SampledValue == nil {
			f.SampledValue = []model.SampledValue{}
		}
		frames[i] = f
	}
	payload := model.MeterValuesPayload{
		StationCode:   b.station.Code,
		Connector:     b.station.Connector,
		TransactionID: req.TransactionID,
		MeterValue:    frames,
	}
	resp, err := b.send(ctx, EndpointMeterValues, payload, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if b.meters != nil {
		if rerr := b.meters.RecordMeterValues(coremetrics.MeterEvent{
			StationCode:   b.station.Code,
			Connector:     b.station.Connector,
			TransactionID: req.TransactionID,
			Frames:        frames,
			Time:          b.now(),
		}); rerr != nil {
			b.log.Warnf("mirror meter values: %v", rerr)
		}
	}
	return resp, nil
}

// StopTransaction reports the end of a session with its totals.
type StopTransaction struct {
	TransactionID string
	IDTag         string
	MeterStopWh   int64
	TotalKWh      float64
	// TotalCost is omitted from the payload when nil.
	TotalCost      *float64
	Reason         string
	At             time.Time
	IdempotencyKey string
}

// StopTransaction sends the session end on the configured connector.
func (b *Bridge) StopTransaction(ctx context.Context, req StopTransaction) (delivery.Response, error) {
	if err := required("transactionId", req.TransactionID); err != nil {
		return nil, err
	}
	if err := required("idTag", req.IDTag); err != nil {
		return nil, err
	}
	payload := model.StopTransactionPayload{
		StationCode:   b.station.Code,
		Connector:     b.station.Connector,
		TransactionID: req.TransactionID,
		IDTag:         req.IDTag,
		MeterStop:     req.MeterStopWh,
		Timestamp:     b.timestamp(req.At),
		Reason:        firstNonEmpty(req.Reason, DefaultStopReason),
		TotalKWh:      req.TotalKWh,
		TotalCost:     req.TotalCost,
	}
	return b.send(ctx, EndpointStopTransaction, payload, req.IdempotencyKey)
}

// StatusNotification reports a connector status change.
type StatusNotification struct {
	Status    string
	ErrorCode string
	At        time.Time
}

// StatusNotification sends the connector status. Known statuses are
// translated to the backend spelling ("SuspendedEV" becomes "suspended_ev");
// others are forwarded as given.
func (b *Bridge) StatusNotification(ctx context.Context, req StatusNotification) (delivery.Response, error) {
	if err := required("status", req.Status); err != nil {
		return nil, err
	}
	st, known := model.ParseStatus(req.Status)
	if !known {
		b.log.Warnf("forwarding unrecognized connector status %q", st)
	}
	payload := model.StatusNotificationPayload{
		StationCode: b.station.Code,
		Connector:   b.station.Connector,
		Status:      st,
		ErrorCode:   firstNonEmpty(req.ErrorCode, model.DefaultErrorCode),
		Timestamp:   b.timestamp(req.At),
	}
	return b.send(ctx, EndpointStatusNotification, payload, "")
}

// Heartbeat tells the backend the station is alive. A zero at means now.
func (b *Bridge) Heartbeat(ctx context.Context, at time.Time) (delivery.Response, error) {
	payload := model.HeartbeatPayload{StationCode: b.station.Code, Timestamp: b.timestamp(at)}
	return b.send(ctx, EndpointHeartbeat, payload, "")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
