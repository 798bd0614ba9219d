package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/core/model"
)

func frame(ts string, values ...model.SampledValue) model.MeterFrame {
	return model.MeterFrame{Timestamp: ts, SampledValue: values}
}

func TestSummarize(t *testing.T) {
	frames := []model.MeterFrame{
		frame("2025-08-18T04:06:00Z",
			model.SampledValue{Measurand: model.MeasurandVoltage, Value: "229", Unit: "V"},
			model.SampledValue{Measurand: model.MeasurandEnergyImport, Value: "1000", Unit: "Wh"},
		),
		frame("2025-08-18T04:10:00Z",
			model.SampledValue{Measurand: model.MeasurandCurrent, Value: "7.2", Unit: "A"},
			model.SampledValue{Measurand: model.MeasurandPower, Value: "1.2", Unit: "kW"},
			model.SampledValue{Measurand: model.MeasurandVoltage, Value: "231", Unit: "V"},
		),
		frame("2025-08-18T04:26:00Z",
			model.SampledValue{Measurand: model.MeasurandPower, Value: "1800", Unit: "W"},
			model.SampledValue{Measurand: model.MeasurandEnergyImport, Value: "1.5", Unit: "kWh"},
			model.SampledValue{Measurand: "Temperature", Value: "30", Unit: "Celsius"},
			model.SampledValue{Measurand: model.MeasurandVoltage, Value: "n/a", Unit: "V"},
		),
	}
	s := Summarize(frames)
	assert.Equal(t, 3, s.Frames)
	assert.Equal(t, 1000.0, s.EnergyStartWh)
	assert.Equal(t, 1500.0, s.EnergyEndWh)
	assert.InDelta(t, 0.5, s.EnergyKWh(), 1e-9)
	assert.InDelta(t, 1500, s.MeanPowerW, 1e-9)
	assert.InDelta(t, 1800, s.MaxPowerW, 1e-9)
	assert.InDelta(t, 230, s.MeanVoltageV, 1e-9)
	assert.Greater(t, s.StdVoltageV, 0.0)
	assert.InDelta(t, 7.2, s.MeanCurrentA, 1e-9)
	assert.Equal(t, 20*time.Minute, s.Duration())
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Frames)
	assert.Zero(t, s.EnergyKWh())
	assert.Zero(t, s.Duration())
}

func TestValue(t *testing.T) {
	v, err := Value(model.SampledValue{Measurand: model.MeasurandEnergyImport, Value: " 2.5 ", Unit: "kWh"})
	require.NoError(t, err)
	assert.Equal(t, 2500.0, v)

	_, err = Value(model.SampledValue{Measurand: model.MeasurandVoltage, Value: "abc", Unit: "V"})
	assert.Error(t, err)
}
