package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kilianp07/ocppbridge/config"
	"github.com/kilianp07/ocppbridge/core/bridge"
	"github.com/kilianp07/ocppbridge/infra/logger"
	"github.com/kilianp07/ocppbridge/infra/poster"
)

// openBridge builds a Bridge for one-shot commands. The returned function
// releases the poster's connections.
func openBridge(opts *options) (*bridge.Bridge, func() error, error) {
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, nil, err
	}
	popts := append([]poster.Option{poster.WithLogger(logger.New("poster"))}, cfg.API.PosterOptions()...)
	p, err := poster.New(cfg.API.Poster(), popts...)
	if err != nil {
		return nil, nil, err
	}
	b, err := bridge.New(p, cfg.Station.Identity(), bridge.WithLogger(logger.New("bridge")))
	if err != nil {
		_ = p.Close()
		return nil, nil, err
	}
	return b, p.Close, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
