package config

import (
	"time"

	"github.com/kilianp07/ocppbridge/core/model"
)

// Station identity defaults.
const (
	DefaultStationCode = "Zora1"
	DefaultConnector   = 1
	DefaultVendor      = "Zora"
	DefaultModel       = "AC3000"
	DefaultFirmware    = "1.0.0"
)

// StationConfig identifies the charge point the bridge speaks for.
type StationConfig struct {
	Code      string `json:"code"`
	Connector int    `json:"connector"`
	Vendor    string `json:"vendor"`
	Model     string `json:"model"`
	Firmware  string `json:"firmware"`
}

// SetDefaults applies sane defaults.
func (c *StationConfig) SetDefaults() {
	if c.Code == "" {
		c.Code = DefaultStationCode
	}
	if c.Connector == 0 {
		c.Connector = DefaultConnector
	}
	if c.Vendor == "" {
		c.Vendor = DefaultVendor
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Firmware == "" {
		c.Firmware = DefaultFirmware
	}
}

// Validate checks mandatory fields.
func (c StationConfig) Validate() error { return c.Identity().Validate() }

// Identity converts the section to a StationIdentity.
func (c StationConfig) Identity() model.StationIdentity {
	return model.StationIdentity{
		Code:      c.Code,
		Connector: c.Connector,
		Vendor:    c.Vendor,
		Model:     c.Model,
		Firmware:  c.Firmware,
	}
}

// HeartbeatConfig controls the periodic heartbeat.
type HeartbeatConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	// BootOnStart sends a BootNotification when the service starts.
	BootOnStart *bool `json:"boot_on_start"`
}

// SetDefaults applies sane defaults.
func (c *HeartbeatConfig) SetDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 60
	}
	if c.BootOnStart == nil {
		on := true
		c.BootOnStart = &on
	}
}

// Validate checks mandatory fields. A negative interval disables heartbeats.
func (c HeartbeatConfig) Validate() error { return nil }

// Interval returns the heartbeat period, zero when disabled.
func (c HeartbeatConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Boot reports whether a BootNotification is sent at start.
func (c HeartbeatConfig) Boot() bool { return c.BootOnStart == nil || *c.BootOnStart }
