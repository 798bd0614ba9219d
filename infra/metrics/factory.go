package metrics

import (
	"github.com/kilianp07/ocppbridge/core/factory"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		// The listen address belongs to the HTTP server, see StartPromServer.
		return NewPromSinkWithRegistry(coremetrics.Config{}, prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
