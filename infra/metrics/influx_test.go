package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) handler(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	l.mu.Lock()
	l.bodies = append(l.bodies, strings.TrimSpace(string(data)))
	l.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (l *lineRecorder) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func TestInfluxSink_RecordDelivery(t *testing.T) {
	rec := &lineRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "tok", Org: "org", Bucket: "bucket"})
	defer sink.Close()
	now := time.Now()
	require.NoError(t, sink.RecordDelivery(coremetrics.DeliveryEvent{
		Endpoint: "start", Method: "POST", Outcome: "success", StatusCode: 200,
		Attempts: 2, Idempotent: true, Latency: 250 * time.Millisecond, Time: now,
	}))

	p := write.NewPointWithMeasurement("ocpp_delivery").
		AddTag("endpoint", "start").
		AddTag("method", "POST").
		AddTag("outcome", "success").
		AddTag("idempotent", "true").
		AddField("status_code", 200).
		AddField("attempts", 2).
		AddField("latency_ms", 250.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	require.Len(t, rec.all(), 1)
	assert.Equal(t, expected, rec.all()[0])
}

func TestInfluxSink_RecordCommandWithoutConnector(t *testing.T) {
	rec := &lineRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	defer sink.Close()
	require.NoError(t, sink.RecordCommand(coremetrics.CommandEvent{
		CommandID: "42", Name: model.CommandRemoteStop, Source: "mqtt", Time: time.Now(),
	}))
	bodies := rec.all()
	require.Len(t, bodies, 1)
	assert.True(t, strings.HasPrefix(bodies[0], "remote_command,"))
	assert.Contains(t, bodies[0], "command_id=42")
	assert.Contains(t, bodies[0], "name=RemoteStopTransaction")
	assert.Contains(t, bodies[0], "connector=-1i")
}

func TestInfluxSink_RecordMeterValues(t *testing.T) {
	rec := &lineRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "tok", Org: "org", Bucket: "bucket"})
	defer sink.Close()
	err := sink.RecordMeterValues(coremetrics.MeterEvent{
		StationCode:   "Zora1",
		Connector:     2,
		TransactionID: "tx-1",
		Time:          time.Now(),
		Frames: []model.MeterFrame{
			{
				Timestamp: "2024-01-01T00:00:00+00:00",
				SampledValue: []model.SampledValue{
					{Measurand: model.MeasurandPower, Value: "7.2", Unit: "kW"},
					{Measurand: model.MeasurandVoltage, Value: "bad", Unit: "V"},
				},
			},
			{SampledValue: []model.SampledValue{{Measurand: model.MeasurandVoltage, Value: "x"}}},
		},
	})
	require.NoError(t, err)
	bodies := rec.all()
	require.Len(t, bodies, 1)
	assert.True(t, strings.HasPrefix(bodies[0], "meter_value,"))
	assert.Contains(t, bodies[0], "connector=2")
	assert.Contains(t, bodies[0], "transaction_id=tx-1")
	assert.Contains(t, bodies[0], "Power.Active.Import=7200 ")
	assert.NotContains(t, bodies[0], "Voltage")
	assert.True(t, strings.HasSuffix(bodies[0], " 1704067200000000000"))
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	assert.True(t, called)
}
