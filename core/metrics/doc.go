// Package metrics defines the observability contract of the bridge. The
// required MetricsSink interface records finished deliveries; optional
// recorder interfaces (retries, remote commands, meter frames) are detected
// by type assertion so sinks only implement what they can store. Sinks are
// built from configuration through the registry in factory.go and combined
// with NewMultiSink.
package metrics
