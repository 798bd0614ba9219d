package cmd

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppbridge/core/bridge"
	"github.com/kilianp07/ocppbridge/core/delivery"
	"github.com/kilianp07/ocppbridge/core/meter"
	"github.com/kilianp07/ocppbridge/core/model"
)

type flowFlags struct {
	idTag       string
	txID        string
	meterStart  int64
	meterStop   int64
	pricePerKWh float64
}

func newFlowCmd(opts *options) *cobra.Command {
	f := &flowFlags{}
	c := &cobra.Command{
		Use:   "flow",
		Short: "Replay a complete charging session against the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, closeFn, err := openBridge(opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			return runFlow(cmd, b, f, time.Now().UTC().Truncate(time.Second))
		},
	}
	fl := c.Flags()
	fl.StringVar(&f.idTag, "id-tag", "CARD123", "RFID / user token")
	fl.StringVar(&f.txID, "tx", "", "transaction id; generated when empty")
	fl.Int64Var(&f.meterStart, "meter-start", 1000, "register at session start in Wh")
	fl.Int64Var(&f.meterStop, "meter-stop", 1500, "register at session end in Wh")
	fl.Float64Var(&f.pricePerKWh, "price", 3.5, "price per kWh used for total_cost; omitted when zero")
	return c
}

func runFlow(cmd *cobra.Command, b *bridge.Bridge, f *flowFlags, now time.Time) error {
	if f.meterStop < f.meterStart {
		return fmt.Errorf("meter-stop %d is below meter-start %d", f.meterStop, f.meterStart)
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	txID := f.txID
	if txID == "" {
		txID = "TX-" + model.NewIdempotencyKey("")[:8]
	}
	step := func(name string, resp delivery.Response, err error) error {
		fmt.Fprintf(out, "→ %s\n", name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return printJSON(out, resp)
	}

	resp, err := b.BootNotification(ctx, bridge.Boot{At: now})
	if err := step("BootNotification", resp, err); err != nil {
		return err
	}
	resp, err = b.Authorize(ctx, f.idTag)
	if err := step("Authorize", resp, err); err != nil {
		return err
	}
	startAt := now.Add(5 * time.Minute)
	resp, err = b.StartTransaction(ctx, bridge.StartTransaction{
		TransactionID:  txID,
		IDTag:          f.idTag,
		MeterStartWh:   f.meterStart,
		At:             startAt,
		IdempotencyKey: model.NewIdempotencyKey("start"),
	})
	if err := step("StartTransaction", resp, err); err != nil {
		return err
	}

	frames := sessionFrames(now, f.meterStart, f.meterStop)
	for i, frame := range frames {
		resp, err = b.MeterValues(ctx, bridge.MeterValues{
			TransactionID:  txID,
			Frames:         []model.MeterFrame{frame},
			IdempotencyKey: model.NewIdempotencyKey("meter"),
		})
		if err := step(fmt.Sprintf("MeterValues (#%d)", i+1), resp, err); err != nil {
			return err
		}
	}

	resp, err = b.StatusNotification(ctx, bridge.StatusNotification{Status: string(model.StatusCharging), At: now.Add(10 * time.Minute)})
	if err := step("StatusNotification (charging)", resp, err); err != nil {
		return err
	}

	start := model.MeterFrame{
		Timestamp:    model.FormatTimestamp(startAt),
		SampledValue: []model.SampledValue{energySample(f.meterStart)},
	}
	sum := meter.Summarize(append([]model.MeterFrame{start}, frames...))
	writeSummary(out, sum)
	stop := bridge.StopTransaction{
		TransactionID:  txID,
		IDTag:          f.idTag,
		MeterStopWh:    int64(sum.EnergyEndWh),
		TotalKWh:       sum.EnergyKWh(),
		At:             now.Add(20 * time.Minute),
		IdempotencyKey: model.NewIdempotencyKey("stop"),
	}
	if f.pricePerKWh > 0 {
		cost := math.Round(sum.EnergyKWh()*f.pricePerKWh*100) / 100
		stop.TotalCost = &cost
	}
	resp, err = b.StopTransaction(ctx, stop)
	if err := step("StopTransaction", resp, err); err != nil {
		return err
	}

	resp, err = b.Heartbeat(ctx, now.Add(25*time.Minute))
	return step("Heartbeat", resp, err)
}

// sessionFrames returns the two frames sent during the session: voltage
// shortly after start, then current and power with the final register.
func sessionFrames(now time.Time, startWh, stopWh int64) []model.MeterFrame {
	first := startWh + 1
	if first > stopWh {
		first = stopWh
	}
	return []model.MeterFrame{
		{
			Timestamp: model.FormatTimestamp(now.Add(6 * time.Minute)),
			SampledValue: []model.SampledValue{
				{Measurand: model.MeasurandVoltage, Value: "229.5", Unit: "V"},
				energySample(first),
			},
		},
		{
			Timestamp: model.FormatTimestamp(now.Add(10 * time.Minute)),
			SampledValue: []model.SampledValue{
				{Measurand: model.MeasurandCurrent, Value: "7.2", Unit: "A"},
				{Measurand: model.MeasurandPower, Value: "1200", Unit: "W"},
				energySample(stopWh),
			},
		},
	}
}

func energySample(wh int64) model.SampledValue {
	return model.SampledValue{Measurand: model.MeasurandEnergyImport, Value: strconv.FormatInt(wh, 10), Unit: "Wh"}
}

func writeSummary(w io.Writer, s meter.Summary) {
	fmt.Fprintf(w, "session: %.3f kWh over %s, mean power %.0f W, mean voltage %.1f V\n",
		s.EnergyKWh(), s.Duration(), s.MeanPowerW, s.MeanVoltageV)
}
