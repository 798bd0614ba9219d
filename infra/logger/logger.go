package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/ocppbridge/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards all output.
type NopLogger = corelogger.NopLogger

// New returns a Logger tagged with the given component. The output format is
// selected through the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// SetLevel sets the process-wide minimum level ("debug", "info", "warn", "error").
func SetLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}
