package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is attempted; the
// returned error joins the individual failures.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordDelivery(ev DeliveryEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordDelivery(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordRetry(ev RetryEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(RetryRecorder); ok {
			if err := rec.RecordRetry(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(CommandRecorder); ok {
			if err := rec.RecordCommand(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordMeterValues(ev MeterEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(MeterRecorder); ok {
			if err := rec.RecordMeterValues(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink implementing io.Closer-like Close() error.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
