package command

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/kilianp07/ocppbridge/core/model"
)

// lookup reads one candidate location from the nested command object or
// its payload.
type lookup func(cmd, payload map[string]any) (any, bool)

func commandField(key string) lookup {
	return func(cmd, _ map[string]any) (any, bool) {
		v, ok := cmd[key]
		return v, ok && v != nil
	}
}

func payloadField(key string) lookup {
	return func(_, payload map[string]any) (any, bool) {
		v, ok := payload[key]
		return v, ok && v != nil
	}
}

// Candidate locations, in priority order.
var (
	nameLookups = []lookup{
		commandField("command"),
		commandField("name"),
		commandField("action"),
	}
	connectorLookups = []lookup{
		commandField("connector"),
		commandField("connector_id"),
		commandField("connectorId"),
		payloadField("connectorId"),
	}
)

// Normalize reduces an inbound document such as
//
//	{"ok":true,"command":{"id":4,"command":"RemoteStartTransaction","payload":{...},"connector_id":1}}
//
// to a RemoteCommand. It reports false when doc is empty or carries no
// nested command object. Malformed fields degrade to absent values; Normalize
// never fails.
func Normalize(doc map[string]any) (model.RemoteCommand, bool) {
	if len(doc) == 0 {
		return model.RemoteCommand{}, false
	}
	cmd, ok := doc["command"].(map[string]any)
	if !ok || len(cmd) == 0 {
		return model.RemoteCommand{}, false
	}

	payload, _ := cmd["payload"].(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}

	var name string
	for _, get := range nameLookups {
		if v, ok := get(cmd, payload); ok {
			if s, ok := v.(string); ok && s != "" {
				name = s
				break
			}
		}
	}

	var connector *int
	for _, get := range connectorLookups {
		if v, ok := get(cmd, payload); ok {
			connector = coerceConnector(v)
			break
		}
	}

	return model.RemoteCommand{
		ID:        cmd["id"],
		Name:      name,
		Payload:   payload,
		Connector: connector,
		Raw:       doc,
	}, true
}

// NormalizeJSON decodes data (numbers kept as json.Number) and normalizes
// it. Invalid JSON or a non-object document yields false.
func NormalizeJSON(data []byte) (model.RemoteCommand, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return model.RemoteCommand{}, false
	}
	return Normalize(doc)
}

// coerceConnector converts v to a non-negative int. Fractional numbers are
// truncated; strings must hold a base-10 integer. Anything else is absent.
func coerceConnector(v any) *int {
	var n int64
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			n = i
		} else if f, err := x.Float64(); err == nil && finite(f) {
			n = int64(f)
		} else {
			return nil
		}
	case float64:
		if !finite(x) {
			return nil
		}
		n = int64(x)
	case float32:
		if !finite(float64(x)) {
			return nil
		}
		n = int64(x)
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil
		}
		n = int64(x)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	if n < 0 || n > math.MaxInt32 {
		return nil
	}
	c := int(n)
	return &c
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && math.Abs(f) < math.MaxInt64
}
