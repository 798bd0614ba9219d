package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/infra/mqtt"
)

type Config struct {
	API       APIConfig       `json:"api"`
	Station   StationConfig   `json:"station"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Commands  CommandsConfig  `json:"commands"`
	MQTT      mqtt.Config     `json:"mqtt"`
	Metrics   metrics.Config  `json:"metrics"`
	Logging   LoggingConfig   `json:"logging"`
}

// legacyEnv maps the flat variables understood by earlier deployments to
// config keys.
var legacyEnv = map[string]string{
	"API_BASE":           "api.base_url",
	"API_KEY":            "api.api_key",
	"STATION_CODE":       "station.code",
	"CONNECTOR":          "station.connector",
	"RETRY_MAX_ATTEMPTS": "api.max_attempts",
	"RETRY_BASE_DELAY":   "api.base_delay_ms",
}

// Load reads the configuration file at path, if any, then applies the
// legacy environment variables and K_SECTION__KEY overrides, in that order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	var legacy legacyEnvLoader
	if err := k.Load(env.ProviderWithValue("", ".", legacy.value), nil); err != nil {
		return nil, err
	}
	if err := errors.Join(legacy.errs...); err != nil {
		return nil, err
	}
	// Optional environment overrides. The callback turns "__" into the
	// koanf delimiter, so keys are split on ".".
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// legacyEnvLoader translates the legacy variables and keeps the values it
// could not parse.
type legacyEnvLoader struct {
	errs []error
}

// value translates one legacy variable. RETRY_BASE_DELAY is expressed in
// seconds and becomes (possibly fractional) milliseconds.
func (l *legacyEnvLoader) value(key, value string) (string, any) {
	target, ok := legacyEnv[key]
	if !ok || strings.TrimSpace(value) == "" {
		return "", nil
	}
	switch key {
	case "API_BASE":
		return target, strings.TrimRight(value, "/")
	case "RETRY_BASE_DELAY":
		secs, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("RETRY_BASE_DELAY=%q: %w", value, err))
			return "", nil
		}
		return target, secs * 1000
	}
	return target, value
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.API.SetDefaults()
	c.Station.SetDefaults()
	c.Heartbeat.SetDefaults()
	c.Commands.SetDefaults()
	c.Logging.SetDefaults()
	if c.Commands.UsesMQTT() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Station.Validate(); err != nil {
		return err
	}
	if err := c.Heartbeat.Validate(); err != nil {
		return err
	}
	if err := c.Commands.Validate(); err != nil {
		return err
	}
	if c.Commands.UsesMQTT() {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	return c.Logging.Validate()
}
