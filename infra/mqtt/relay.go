package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/delivery"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/infra/logger"
)

// SourceMQTT labels commands received on the push channel.
const SourceMQTT = "mqtt"

// ResultReporter forwards executor results to the backend.
// command.Acknowledger satisfies it.
type ResultReporter interface {
	Report(ctx context.Context, res command.Result) (delivery.Response, error)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// CommandRelay bridges the station's command topics and the backend:
// pushed commands are normalized and published on out, canonical commands
// are sent to the executor, and executor results are acknowledged.
type CommandRelay struct {
	cli     pahoClient
	cfg     Config
	topics  Topics
	out     command.Publisher
	results ResultReporter
	sink    coremetrics.MetricsSink
	log     logger.Logger
	sleep   func(context.Context, time.Duration) error
	timeout time.Duration
}

// NewCommandRelay connects to the broker and subscribes to the station's
// inbound command and result topics. results and sink may be nil.
func NewCommandRelay(cfg Config, station model.StationIdentity, out command.Publisher, results ResultReporter, sink coremetrics.MetricsSink) (*CommandRelay, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	log := logger.New("mqtt_relay")
	r := &CommandRelay{
		cfg:     cfg,
		topics:  TopicsFor(cfg.TopicPrefix, station.Code),
		out:     out,
		results: results,
		sink:    sink,
		log:     log,
		sleep:   sleepContext,
		timeout: 30 * time.Second,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected, listening on %s", r.topics.In)
		r.subscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	r.cli = c
	return r, nil
}

func (r *CommandRelay) subscribe(c pahoClient) {
	if token := c.Subscribe(r.topics.In, r.cfg.qos(QoSIn), r.onCommand); token.Wait() && token.Error() != nil {
		r.log.Errorf("subscribe %s: %v", r.topics.In, token.Error())
	}
	if r.results == nil {
		return
	}
	if token := c.Subscribe(r.topics.Result, r.cfg.qos(QoSResult), r.onResult); token.Wait() && token.Error() != nil {
		r.log.Errorf("subscribe %s: %v", r.topics.Result, token.Error())
	}
}

// Topics returns the topic names used by the relay.
func (r *CommandRelay) Topics() Topics { return r.topics }

func (r *CommandRelay) onCommand(_ paho.Client, msg paho.Message) {
	cmd, ok := command.NormalizeJSON(msg.Payload())
	if !ok {
		r.log.Warnf("ignoring unrecognized command document on %s", msg.Topic())
		return
	}
	command.Dispatch(cmd, SourceMQTT, r.out, r.sink, r.log)
}

func (r *CommandRelay) onResult(_ paho.Client, msg paho.Message) {
	var res command.Result
	dec := json.NewDecoder(bytes.NewReader(msg.Payload()))
	dec.UseNumber()
	if err := dec.Decode(&res); err != nil {
		r.log.Errorf("failed to decode result: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.results.Report(ctx, res); err != nil {
		r.log.Errorf("report result for command %v: %v", res.ID, err)
		return
	}
	r.log.Infof("reported %s for command %v", res.Status, res.ID)
}

// PublishCommand sends cmd in canonical form to the executor topic,
// retrying with exponential backoff. Cancelling ctx stops the retries.
func (r *CommandRelay) PublishCommand(ctx context.Context, cmd model.RemoteCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	backoff := time.Duration(r.cfg.BackoffMS) * time.Millisecond
	var publishErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		token := r.cli.Publish(r.topics.Out, r.cfg.qos(QoSOut), false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			r.log.Infof("forwarded %s (id=%s) to %s", cmd.Name, cmd.IDString(), r.topics.Out)
			return nil
		}
		r.log.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < r.cfg.MaxRetries {
			if err := r.sleep(ctx, backoff*time.Duration(1<<attempt)); err != nil {
				return fmt.Errorf("publish %s: %w", r.topics.Out, errors.Join(err, publishErr))
			}
		}
	}
	return fmt.Errorf("publish %s: %w", r.topics.Out, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (r *CommandRelay) Disconnect() {
	if r.cli != nil && r.cli.IsConnected() {
		r.cli.Disconnect(250)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
