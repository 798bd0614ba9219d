package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/ocppbridge/core/meter"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/infra/logger"
)

// InfluxConfig holds the InfluxDB connection settings.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes bridge events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDelivery writes one ocpp_delivery point.
func (s *InfluxSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("ocpp_delivery").
		AddTag("endpoint", ev.Endpoint).
		AddTag("method", ev.Method).
		AddTag("outcome", ev.Outcome).
		AddTag("idempotent", strconv.FormatBool(ev.Idempotent)).
		AddField("status_code", ev.StatusCode).
		AddField("attempts", ev.Attempts).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRetry writes one ocpp_retry point.
func (s *InfluxSink) RecordRetry(ev coremetrics.RetryEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("ocpp_retry").
		AddTag("endpoint", ev.Endpoint).
		AddField("attempt", ev.Attempt).
		AddField("status_code", ev.StatusCode).
		AddField("delay_ms", round3(ev.Delay.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCommand writes one remote_command point.
func (s *InfluxSink) RecordCommand(ev coremetrics.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("remote_command").
		AddTag("name", ev.Name).
		AddTag("source", ev.Source)
	if ev.CommandID != "" {
		p = p.AddTag("command_id", ev.CommandID)
	}
	if ev.Connector != nil {
		p = p.AddField("connector", *ev.Connector)
	} else {
		p = p.AddField("connector", -1)
	}
	p = p.SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordMeterValues writes one meter_value point per frame. Frames with an
// unparsable timestamp use the event time.
func (s *InfluxSink) RecordMeterValues(ev coremetrics.MeterEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, f := range ev.Frames {
		ts, err := time.Parse(time.RFC3339, f.Timestamp)
		if err != nil {
			ts = ev.Time
		}
		p := write.NewPointWithMeasurement("meter_value").
			AddTag("station_code", ev.StationCode).
			AddTag("connector", strconv.Itoa(ev.Connector)).
			AddTag("transaction_id", ev.TransactionID)
		fields := 0
		for _, sv := range f.SampledValue {
			v, err := meter.Value(sv)
			if err != nil {
				s.log.Warnf("skip sample %s: %v", sv.Measurand, err)
				continue
			}
			p = p.AddField(sv.Measurand, round3(v))
			fields++
		}
		if fields == 0 {
			continue
		}
		if err := s.writeAPI.WritePoint(ctx, p.SetTime(ts)); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// energyWh extracts the energy register of a frame in Wh.
func energyWh(values []model.SampledValue) (float64, bool) {
	for _, sv := range values {
		if sv.Measurand != model.MeasurandEnergyImport {
			continue
		}
		if v, err := meter.Value(sv); err == nil {
			return v, true
		}
	}
	return 0, false
}
