package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppbridge/core/bridge"
	"github.com/kilianp07/ocppbridge/core/delivery"
	"github.com/kilianp07/ocppbridge/core/model"
)

var sendEvents = []string{"boot", "authorize", "start", "meter", "stop", "status", "heartbeat"}

type sendFlags struct {
	idTag     string
	txID      string
	idemKey   string
	meterWh   int64
	totalKWh  float64
	totalCost float64
	reason    string
	status    string
	errorCode string
	at        string
	samples   []string
}

func newSendCmd(opts *options) *cobra.Command {
	f := &sendFlags{}
	c := &cobra.Command{
		Use:       "send <" + strings.Join(sendEvents, "|") + ">",
		Short:     "Send a single event to the backend and print the response",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: sendEvents,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBridge(opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			resp, err := sendEvent(cmd, b, args[0], f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	fl := c.Flags()
	fl.StringVar(&f.idTag, "id-tag", "", "RFID / user token")
	fl.StringVar(&f.txID, "tx", "", "transaction id")
	fl.StringVar(&f.idemKey, "idem-key", "", "idempotency key; generated for start, meter and stop when empty")
	fl.Int64Var(&f.meterWh, "meter-wh", 0, "meter register in Wh (meterStart for start, meterStop for stop)")
	fl.Float64Var(&f.totalKWh, "total-kwh", 0, "energy delivered during the session")
	fl.Float64Var(&f.totalCost, "total-cost", -1, "session cost; omitted when negative")
	fl.StringVar(&f.reason, "reason", "", "stop reason (default Local)")
	fl.StringVar(&f.status, "status", "", "connector status for the status event")
	fl.StringVar(&f.errorCode, "error-code", "", "error code (default NoError)")
	fl.StringVar(&f.at, "at", "", "event time in RFC 3339; now when empty")
	fl.StringArrayVar(&f.samples, "sample", nil, "meter sample measurand=value[unit], repeatable")
	return c
}

func sendEvent(cmd *cobra.Command, b *bridge.Bridge, event string, f *sendFlags) (delivery.Response, error) {
	ctx := cmd.Context()
	at, err := parseAt(f.at)
	if err != nil {
		return nil, err
	}
	key := func(prefix string) string {
		if f.idemKey != "" {
			return f.idemKey
		}
		return model.NewIdempotencyKey(prefix)
	}
	switch event {
	case "boot":
		return b.BootNotification(ctx, bridge.Boot{At: at})
	case "authorize":
		return b.Authorize(ctx, f.idTag)
	case "start":
		return b.StartTransaction(ctx, bridge.StartTransaction{
			TransactionID: f.txID, IDTag: f.idTag, MeterStartWh: f.meterWh, At: at, IdempotencyKey: key("start"),
		})
	case "meter":
		values, err := parseSamples(f.samples)
		if err != nil {
			return nil, err
		}
		frame := model.MeterFrame{SampledValue: values}
		if !at.IsZero() {
			frame.Timestamp = model.FormatTimestamp(at)
		}
		return b.MeterValues(ctx, bridge.MeterValues{
			TransactionID: f.txID, Frames: []model.MeterFrame{frame}, IdempotencyKey: key("meter"),
		})
	case "stop":
		req := bridge.StopTransaction{
			TransactionID: f.txID, IDTag: f.idTag, MeterStopWh: f.meterWh, TotalKWh: f.totalKWh,
			Reason: f.reason, At: at, IdempotencyKey: key("stop"),
		}
		if f.totalCost >= 0 {
			cost := f.totalCost
			req.TotalCost = &cost
		}
		return b.StopTransaction(ctx, req)
	case "status":
		return b.StatusNotification(ctx, bridge.StatusNotification{Status: f.status, ErrorCode: f.errorCode, At: at})
	case "heartbeat":
		return b.Heartbeat(ctx, at)
	}
	return nil, fmt.Errorf("unknown event %q", event)
}

func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --at: %w", err)
	}
	return t, nil
}

// parseSamples reads "Voltage=229.5V" style flags. The unit is the trailing
// non-numeric suffix of the value.
func parseSamples(in []string) ([]model.SampledValue, error) {
	out := make([]model.SampledValue, 0, len(in))
	for _, s := range in {
		measurand, raw, ok := strings.Cut(s, "=")
		if !ok || measurand == "" || raw == "" {
			return nil, fmt.Errorf("invalid sample %q, want measurand=value[unit]", s)
		}
		i := len(raw)
		for i > 0 && !strings.ContainsRune("0123456789.-", rune(raw[i-1])) {
			i--
		}
		if i == 0 {
			return nil, fmt.Errorf("invalid sample %q: no numeric value", s)
		}
		out = append(out, model.SampledValue{Measurand: measurand, Value: raw[:i], Unit: raw[i:]})
	}
	return out, nil
}
