package command

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kilianp07/ocppbridge/core/delivery"
	"github.com/kilianp07/ocppbridge/core/logger"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
)

// EndpointPoll returns at most one pending command per call.
const EndpointPoll = "commands/poll"

// Publisher receives normalized commands. eventbus.TypedBus satisfies it.
type Publisher interface {
	Publish(model.RemoteCommand)
}

// Poller fetches pending commands for the station's connector.
type Poller struct {
	poster  delivery.Poster
	station model.StationIdentity
	out     Publisher
	sink    coremetrics.MetricsSink
	log     logger.Logger
}

// NewPoller builds a Poller. sink and log may be nil.
func NewPoller(p delivery.Poster, station model.StationIdentity, out Publisher, sink coremetrics.MetricsSink, log logger.Logger) *Poller {
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Poller{poster: p, station: station, out: out, sink: sink, log: log}
}

// Poll asks the backend for the next pending command. The bool is false
// when nothing is pending or the document cannot be normalized.
func (p *Poller) Poll(ctx context.Context) (model.RemoteCommand, bool, error) {
	q := url.Values{}
	q.Set("station_code", p.station.Code)
	q.Set("connector", strconv.Itoa(p.station.Connector))
	resp, err := p.poster.GetJSON(ctx, EndpointPoll, q)
	if err != nil {
		return model.RemoteCommand{}, false, fmt.Errorf("poll commands: %w", err)
	}
	cmd, ok := Normalize(resp)
	if !ok {
		return model.RemoteCommand{}, false, nil
	}
	Dispatch(cmd, "poll", p.out, p.sink, p.log)
	return cmd, true, nil
}

// Dispatch records and publishes a normalized command. Shared by every
// intake channel.
func Dispatch(cmd model.RemoteCommand, source string, out Publisher, sink coremetrics.MetricsSink, log logger.Logger) {
	log.Infof("remote command %s (id=%s, connector=%s) from %s", cmd.Name, cmd.IDString(), connectorString(cmd.Connector), source)
	if rec, ok := sink.(coremetrics.CommandRecorder); ok {
		if err := rec.RecordCommand(coremetrics.CommandEvent{
			CommandID: cmd.IDString(),
			Name:      cmd.Name,
			Source:    source,
			Connector: cmd.Connector,
			Time:      time.Now(),
		}); err != nil {
			log.Debugf("record command: %v", err)
		}
	}
	if out != nil {
		out.Publish(cmd)
	}
}

func connectorString(c *int) string {
	if c == nil {
		return "none"
	}
	return strconv.Itoa(*c)
}
