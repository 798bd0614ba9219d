package model

// Payloads posted to the backend. Field names follow the backend contract.

type BootNotificationPayload struct {
	StationCode string `json:"station_code"`
	Vendor      string `json:"vendor"`
	Model       string `json:"model"`
	Firmware    string `json:"firmware"`
	Timestamp   string `json:"timestamp"`
}

type AuthorizePayload struct {
	StationCode string `json:"station_code"`
	IDTag       string `json:"idTag"`
}

type StartTransactionPayload struct {
	StationCode   string `json:"station_code"`
	Connector     int    `json:"connector"`
	TransactionID string `json:"transactionId"`
	IDTag         string `json:"idTag"`
	MeterStart    int64  `json:"meterStart"`
	Timestamp     string `json:"timestamp"`
}

type MeterValuesPayload struct {
	StationCode   string       `json:"station_code"`
	Connector     int          `json:"connector"`
	TransactionID string       `json:"transactionId"`
	MeterValue    []MeterFrame `json:"meterValue"`
}

type StopTransactionPayload struct {
	StationCode   string   `json:"station_code"`
	Connector     int      `json:"connector"`
	TransactionID string   `json:"transactionId"`
	IDTag         string   `json:"idTag"`
	MeterStop     int64    `json:"meterStop"`
	Timestamp     string   `json:"timestamp"`
	Reason        string   `json:"reason"`
	TotalKWh      float64  `json:"total_kwh"`
	TotalCost     *float64 `json:"total_cost,omitempty"`
}

type StatusNotificationPayload struct {
	StationCode string            `json:"station_code"`
	Connector   int               `json:"connector"`
	Status      ChargePointStatus `json:"status"`
	ErrorCode   string            `json:"errorCode"`
	Timestamp   string            `json:"timestamp"`
}

type HeartbeatPayload struct {
	StationCode string `json:"station_code"`
	Timestamp   string `json:"timestamp"`
}
