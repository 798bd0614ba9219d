package command

import (
	"context"
	"fmt"

	"github.com/kilianp07/ocppbridge/core/delivery"
	"github.com/kilianp07/ocppbridge/core/model"
)

// EndpointAck receives execution results.
const EndpointAck = "commands/ack"

// AckStatus is the execution result reported to the backend.
type AckStatus string

const (
	AckAccepted  AckStatus = "ack"
	AckError     AckStatus = "error"
	AckCancelled AckStatus = "cancelled"
)

// Valid reports whether the backend accepts s.
func (s AckStatus) Valid() bool {
	switch s {
	case AckAccepted, AckError, AckCancelled:
		return true
	}
	return false
}

// Result is an execution outcome produced by the station-side executor.
type Result struct {
	ID     any            `json:"id"`
	Status AckStatus      `json:"status"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Acknowledger reports command results to the backend.
type Acknowledger struct {
	poster delivery.Poster
}

// NewAcknowledger returns an Acknowledger delivering through p.
func NewAcknowledger(p delivery.Poster) *Acknowledger {
	return &Acknowledger{poster: p}
}

// Ack reports the result of cmd.
func (a *Acknowledger) Ack(ctx context.Context, cmd model.RemoteCommand, status AckStatus, detail map[string]any) (delivery.Response, error) {
	return a.Report(ctx, Result{ID: cmd.ID, Status: status, Detail: detail})
}

// Report posts res after validating it locally.
func (a *Acknowledger) Report(ctx context.Context, res Result) (delivery.Response, error) {
	if res.ID == nil {
		return nil, fmt.Errorf("ack: command id is required")
	}
	if !res.Status.Valid() {
		return nil, fmt.Errorf("ack: invalid status %q", res.Status)
	}
	return a.poster.PostJSON(ctx, EndpointAck, res, "")
}
