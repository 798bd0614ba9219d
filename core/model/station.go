package model

import (
	"fmt"
	"strings"
)

// StationIdentity identifies the charge point this bridge speaks for.
// It is built once from configuration and shared read-only.
type StationIdentity struct {
	Code      string
	Connector int
	Vendor    string
	Model     string
	Firmware  string
}

// Validate checks mandatory fields.
func (s StationIdentity) Validate() error {
	if strings.TrimSpace(s.Code) == "" {
		return fmt.Errorf("station code is required")
	}
	if s.Connector < 1 {
		return fmt.Errorf("connector must be positive, got %d", s.Connector)
	}
	return nil
}
