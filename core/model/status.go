package model

import (
	"strings"
)

// ChargePointStatus is the connector status reported in StatusNotification.
// Known values use the backend spelling.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "available"
	StatusPreparing     ChargePointStatus = "preparing"
	StatusCharging      ChargePointStatus = "charging"
	StatusSuspendedEV   ChargePointStatus = "suspended_ev"
	StatusSuspendedEVSE ChargePointStatus = "suspended_evse"
	StatusFinishing     ChargePointStatus = "finishing"
	StatusReserved      ChargePointStatus = "reserved"
	StatusUnavailable   ChargePointStatus = "unavailable"
	StatusFaulted       ChargePointStatus = "faulted"
)

// DefaultErrorCode is reported when a status carries no fault.
const DefaultErrorCode = "NoError"

// knownStatuses is keyed by the folded form: lower case, no separators.
var knownStatuses = map[string]ChargePointStatus{}

func init() {
	for _, st := range []ChargePointStatus{
		StatusAvailable, StatusPreparing, StatusCharging, StatusSuspendedEV,
		StatusSuspendedEVSE, StatusFinishing, StatusReserved, StatusUnavailable,
		StatusFaulted,
	} {
		knownStatuses[foldStatus(string(st))] = st
	}
}

func foldStatus(s string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
}

// ParseStatus maps OCPP and backend spellings of a known status
// ("SuspendedEV", "suspended_ev") to its backend value. Unknown statuses are
// returned trimmed but otherwise unchanged, with known set to false.
func ParseStatus(s string) (st ChargePointStatus, known bool) {
	if st, ok := knownStatuses[foldStatus(s)]; ok {
		return st, true
	}
	return ChargePointStatus(strings.TrimSpace(s)), false
}

func (s ChargePointStatus) String() string { return string(s) }
