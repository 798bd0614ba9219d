// Package meter interprets sampled meter frames: unit normalization and
// per-session summaries used to derive stop totals.
package meter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/ocppbridge/core/model"
)

// Summary aggregates the frames of one transaction.
type Summary struct {
	Frames        int
	EnergyStartWh float64
	EnergyEndWh   float64
	MeanPowerW    float64
	MaxPowerW     float64
	MeanVoltageV  float64
	StdVoltageV   float64
	MeanCurrentA  float64
	First         time.Time
	Last          time.Time
}

// EnergyKWh is the energy imported between the first and last register reading.
func (s Summary) EnergyKWh() float64 {
	if s.EnergyEndWh <= s.EnergyStartWh {
		return 0
	}
	return (s.EnergyEndWh - s.EnergyStartWh) / 1000
}

// Duration spans the first and last frame timestamps.
func (s Summary) Duration() time.Duration {
	if s.First.IsZero() || s.Last.IsZero() {
		return 0
	}
	return s.Last.Sub(s.First)
}

// Summarize parses frames in order. Values that cannot be parsed are
// skipped; unknown measurands are ignored.
func Summarize(frames []model.MeterFrame) Summary {
	var (
		sum     Summary
		energy  []float64
		power   []float64
		voltage []float64
		current []float64
	)
	for _, f := range frames {
		sum.Frames++
		if ts, err := time.Parse(time.RFC3339Nano, f.Timestamp); err == nil {
			if sum.First.IsZero() || ts.Before(sum.First) {
				sum.First = ts
			}
			if ts.After(sum.Last) {
				sum.Last = ts
			}
		}
		for _, sv := range f.SampledValue {
			v, err := Value(sv)
			if err != nil {
				continue
			}
			switch sv.Measurand {
			case model.MeasurandEnergyImport:
				energy = append(energy, v)
			case model.MeasurandPower:
				power = append(power, v)
			case model.MeasurandVoltage:
				voltage = append(voltage, v)
			case model.MeasurandCurrent:
				current = append(current, v)
			}
		}
	}
	if len(energy) > 0 {
		sum.EnergyStartWh = energy[0]
		sum.EnergyEndWh = energy[len(energy)-1]
	}
	if len(power) > 0 {
		sum.MeanPowerW = stat.Mean(power, nil)
		sum.MaxPowerW = floats.Max(power)
	}
	if len(voltage) > 0 {
		sum.MeanVoltageV, sum.StdVoltageV = stat.MeanStdDev(voltage, nil)
		if math.IsNaN(sum.StdVoltageV) {
			sum.StdVoltageV = 0
		}
	}
	if len(current) > 0 {
		sum.MeanCurrentA = stat.Mean(current, nil)
	}
	return sum
}

// Value parses a sampled value and converts k-prefixed units (kWh, kW, kV,
// kA) to their base unit.
func Value(sv model.SampledValue) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(sv.Value), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s value %q: %w", sv.Measurand, sv.Value, err)
	}
	switch strings.ToLower(sv.Unit) {
	case "kwh", "kw", "kv", "ka":
		v *= 1000
	}
	return v, nil
}
