package metrics

import (
	"time"

	"github.com/kilianp07/ocppbridge/core/model"
)

// DeliveryEvent describes a finished call to the poster, successful or not.
type DeliveryEvent struct {
	Endpoint   string
	Method     string
	Outcome    string // "success", "non_retryable" or "exhausted"
	StatusCode int    // last HTTP status, 0 for transport faults
	Attempts   int
	Idempotent bool
	Latency    time.Duration
	Time       time.Time
}

// MetricsSink records delivery results.
type MetricsSink interface {
	RecordDelivery(ev DeliveryEvent) error
}

// RetryEvent is emitted before sleeping on a retryable failure.
type RetryEvent struct {
	Endpoint   string
	Attempt    int
	StatusCode int
	Delay      time.Duration
	Time       time.Time
}

// RetryRecorder records retries.
type RetryRecorder interface {
	RecordRetry(ev RetryEvent) error
}

// CommandEvent describes a normalized remote command.
type CommandEvent struct {
	CommandID string
	Name      string
	Source    string // "poll" or "mqtt"
	Connector *int
	Time      time.Time
}

// CommandRecorder records remote commands.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent) error
}

// MeterEvent carries meter frames delivered for a transaction.
type MeterEvent struct {
	StationCode   string
	Connector     int
	TransactionID string
	Frames        []model.MeterFrame
	Time          time.Time
}

// MeterRecorder mirrors delivered meter frames.
type MeterRecorder interface {
	RecordMeterValues(ev MeterEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDelivery(DeliveryEvent) error { return nil }
func (NopSink) RecordRetry(RetryEvent) error       { return nil }
func (NopSink) RecordCommand(CommandEvent) error   { return nil }
func (NopSink) RecordMeterValues(MeterEvent) error { return nil }
