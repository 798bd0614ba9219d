package model

// Common measurands reported in meter frames.
const (
	MeasurandVoltage      = "Voltage"
	MeasurandCurrent      = "Current.Import"
	MeasurandPower        = "Power.Active.Import"
	MeasurandEnergyImport = "Energy.Active.Import.Register"
)

// SampledValue is a single measurement inside a meter frame. Values are kept
// as strings on the wire.
type SampledValue struct {
	Measurand string `json:"measurand"`
	Value     string `json:"value"`
	Unit      string `json:"unit"`
}

// MeterFrame groups the values sampled at one instant.
type MeterFrame struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}
