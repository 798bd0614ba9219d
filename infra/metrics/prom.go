package metrics

import (
	"strconv"

	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records deliveries, retries and remote commands in Prometheus metrics.
type PromSink struct {
	deliveries *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	attempts   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	commands   *prometheus.CounterVec
	meterWh    *prometheus.GaugeVec
}

// NewPromSink registers the bridge metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpp_deliveries_total",
			Help: "Finished calls to the backend by endpoint and outcome",
		}, []string{"endpoint", "method", "outcome", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocpp_delivery_duration_seconds",
			Help:    "Wall time of a delivery including retries and backoff",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "outcome"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocpp_delivery_attempts",
			Help:    "HTTP attempts spent per delivery",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		}, []string{"endpoint"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpp_delivery_retries_total",
			Help: "Retryable failures followed by a backoff",
		}, []string{"endpoint", "status"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpp_remote_commands_total",
			Help: "Normalized remote commands by name and intake channel",
		}, []string{"name", "source"}),
		meterWh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ocpp_meter_energy_wh",
			Help: "Last delivered energy register per connector",
		}, []string{"station", "connector"}),
	}

	var err error
	if s.deliveries, err = registerOrExisting(reg, s.deliveries); err != nil {
		return nil, err
	}
	if s.latency, err = registerOrExisting(reg, s.latency); err != nil {
		return nil, err
	}
	if s.attempts, err = registerOrExisting(reg, s.attempts); err != nil {
		return nil, err
	}
	if s.retries, err = registerOrExisting(reg, s.retries); err != nil {
		return nil, err
	}
	if s.commands, err = registerOrExisting(reg, s.commands); err != nil {
		return nil, err
	}
	if s.meterWh, err = registerOrExisting(reg, s.meterWh); err != nil {
		return nil, err
	}
	return s, nil
}

// registerOrExisting registers c, or returns the collector already registered
// under the same descriptor.
func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDelivery counts the delivery and observes its latency and attempts.
func (s *PromSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	s.deliveries.WithLabelValues(ev.Endpoint, ev.Method, ev.Outcome, statusLabel(ev.StatusCode)).Inc()
	s.latency.WithLabelValues(ev.Endpoint, ev.Outcome).Observe(ev.Latency.Seconds())
	s.attempts.WithLabelValues(ev.Endpoint).Observe(float64(ev.Attempts))
	return nil
}

// RecordRetry counts a retry.
func (s *PromSink) RecordRetry(ev coremetrics.RetryEvent) error {
	s.retries.WithLabelValues(ev.Endpoint, statusLabel(ev.StatusCode)).Inc()
	return nil
}

// RecordCommand counts a remote command.
func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.Name, ev.Source).Inc()
	return nil
}

// RecordMeterValues sets the energy gauge from the last register sample.
func (s *PromSink) RecordMeterValues(ev coremetrics.MeterEvent) error {
	for i := len(ev.Frames) - 1; i >= 0; i-- {
		if wh, ok := energyWh(ev.Frames[i].SampledValue); ok {
			s.meterWh.WithLabelValues(ev.StationCode, strconv.Itoa(ev.Connector)).Set(wh)
			return nil
		}
	}
	return nil
}

func statusLabel(code int) string {
	if code == 0 {
		return "transport"
	}
	return strconv.Itoa(code)
}
