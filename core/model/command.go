package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RemoteCommand is the canonical shape of a backend-issued instruction,
// whatever naming variant the inbound document used.
type RemoteCommand struct {
	// ID is the backend identifier as decoded (json.Number, string...), nil when absent.
	ID      any            `json:"id"`
	Name    string         `json:"name,omitempty"`
	Payload map[string]any `json:"payload"`
	// Connector is nil when absent or not coercible to a non-negative integer.
	Connector *int `json:"connector"`
	// Raw is the untouched inbound document.
	Raw map[string]any `json:"raw,omitempty"`
}

// HasID reports whether the backend supplied an identifier.
func (c RemoteCommand) HasID() bool { return c.ID != nil }

// IDString renders ID for logs and metric labels.
func (c RemoteCommand) IDString() string {
	switch v := c.ID.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Remote command names issued by the backend.
const (
	CommandRemoteStart = "RemoteStartTransaction"
	CommandRemoteStop  = "RemoteStopTransaction"
)

// NewIdempotencyKey returns prefix-<uuid>, suitable for one logical operation.
// Callers must reuse the returned key when they retry that operation.
func NewIdempotencyKey(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
