// Package infra groups the bridge's I/O adapters: the retrying HTTP poster
// that talks to the OCPP backend, the MQTT command relay, the Prometheus and
// InfluxDB metrics sinks, and the zerolog logger. Adapters implement the core
// interfaces (delivery.Poster, metrics.MetricsSink, logger.Logger) or feed
// them (command.Publisher), so the event builders and the normalizer never
// import infra.
package infra
