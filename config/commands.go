package config

import (
	"fmt"
	"time"
)

// Command intake modes.
const (
	CommandsOff  = "off"
	CommandsPoll = "poll"
	CommandsMQTT = "mqtt"
	CommandsBoth = "both"
)

// CommandsConfig selects how remote commands reach the bridge.
type CommandsConfig struct {
	Mode                string `json:"mode"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	// Ack reports executor results received over MQTT to the backend.
	Ack bool `json:"ack"`
}

// SetDefaults applies sane defaults.
func (c *CommandsConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = CommandsPoll
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 5
	}
}

// Validate checks mandatory fields.
func (c CommandsConfig) Validate() error {
	switch c.Mode {
	case CommandsOff, CommandsPoll, CommandsMQTT, CommandsBoth:
	default:
		return fmt.Errorf("commands: unknown mode %s", c.Mode)
	}
	if c.UsesPoll() && c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("commands: poll_interval_seconds must be positive")
	}
	return nil
}

// UsesPoll reports whether the poll endpoint is queried.
func (c CommandsConfig) UsesPoll() bool { return c.Mode == CommandsPoll || c.Mode == CommandsBoth }

// UsesMQTT reports whether the MQTT relay is started.
func (c CommandsConfig) UsesMQTT() bool { return c.Mode == CommandsMQTT || c.Mode == CommandsBoth }

// PollInterval returns the poll period.
func (c CommandsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
