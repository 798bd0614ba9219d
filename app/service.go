package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kilianp07/ocppbridge/config"
	"github.com/kilianp07/ocppbridge/core/bridge"
	"github.com/kilianp07/ocppbridge/core/command"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/infra/logger"
	"github.com/kilianp07/ocppbridge/infra/metrics"
	"github.com/kilianp07/ocppbridge/infra/mqtt"
	"github.com/kilianp07/ocppbridge/infra/poster"
	"github.com/kilianp07/ocppbridge/internal/eventbus"
)

// Executor carries out a normalized remote command on the station.
type Executor interface {
	Execute(ctx context.Context, cmd model.RemoteCommand) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, cmd model.RemoteCommand) error

func (f ExecutorFunc) Execute(ctx context.Context, cmd model.RemoteCommand) error { return f(ctx, cmd) }

// Service wires the bridge, the command intake channels and the schedules.
type Service struct {
	Bridge *bridge.Bridge

	cfg      config.Config
	poster   *poster.HTTPPoster
	sink     coremetrics.MetricsSink
	bus      *eventbus.TypedBus[model.RemoteCommand]
	poller   *command.Poller
	acks     *command.Acknowledger
	relay    *mqtt.CommandRelay
	executor Executor
	sched    *gocron.Scheduler
	log      logger.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option customizes a Service.
type Option func(*Service)

// WithExecutor sets the command executor. When MQTT is enabled the relay is
// the default executor.
func WithExecutor(e Executor) Option {
	return func(s *Service) { s.executor = e }
}

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	logg := logger.New("service")

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	popts := append([]poster.Option{
		poster.WithLogger(logger.New("poster")),
		poster.WithMetrics(sink),
	}, cfg.API.PosterOptions()...)
	p, err := poster.New(cfg.API.Poster(), popts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("poster: %w", err), coremetrics.Close(sink))
	}

	station := cfg.Station.Identity()
	bopts := []bridge.Option{bridge.WithLogger(logger.New("bridge"))}
	if rec, ok := sink.(coremetrics.MeterRecorder); ok {
		bopts = append(bopts, bridge.WithMeterRecorder(rec))
	}
	b, err := bridge.New(p, station, bopts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("bridge: %w", err), p.Close(), coremetrics.Close(sink))
	}

	bus := eventbus.NewTyped[model.RemoteCommand]()
	svc := &Service{
		Bridge: b,
		cfg:    *cfg,
		poster: p,
		sink:   sink,
		bus:    bus,
		acks:   command.NewAcknowledger(p),
		sched:  gocron.NewScheduler(time.UTC),
		log:    logg,
	}
	for _, o := range opts {
		o(svc)
	}

	if cfg.Commands.UsesPoll() {
		svc.poller = command.NewPoller(p, station, bus, sink, logger.New("poller"))
	}
	if cfg.Commands.UsesMQTT() {
		var reporter mqtt.ResultReporter
		if cfg.Commands.Ack {
			reporter = svc.acks
		}
		relay, err := mqtt.NewCommandRelay(cfg.MQTT, station, bus, reporter, sink)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("mqtt relay: %w", err), p.Close(), coremetrics.Close(sink))
		}
		svc.relay = relay
		if svc.executor == nil {
			svc.executor = ExecutorFunc(relay.PublishCommand)
		}
	}
	svc.sched.SingletonModeAll()
	return svc, nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if addr := s.cfg.Metrics.PrometheusPort; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	if s.cfg.Heartbeat.Boot() {
		if _, err := s.Bridge.BootNotification(ctx, bridge.Boot{}); err != nil {
			s.log.Errorf("boot notification: %v", err)
		}
	}

	sub := s.bus.Subscribe()
	s.wg.Add(1)
	go s.consume(ctx, sub)

	if err := s.schedule(ctx); err != nil {
		s.bus.Unsubscribe(sub)
		return err
	}
	s.sched.StartAsync()
	s.log.Infof("bridge running for station %s connector %d", s.cfg.Station.Code, s.cfg.Station.Connector)

	<-ctx.Done()
	s.sched.Stop()
	s.bus.Unsubscribe(sub)
	s.wg.Wait()
	return nil
}

func (s *Service) schedule(ctx context.Context) error {
	if every := s.cfg.Heartbeat.Interval(); every > 0 {
		if _, err := s.sched.Every(every).WaitForSchedule().Do(func() {
			if _, err := s.Bridge.Heartbeat(ctx, time.Time{}); err != nil && ctx.Err() == nil {
				s.log.Errorf("heartbeat: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule heartbeat: %w", err)
		}
	}
	if s.poller != nil {
		if _, err := s.sched.Every(s.cfg.Commands.PollInterval()).Do(func() {
			if _, _, err := s.poller.Poll(ctx); err != nil && ctx.Err() == nil {
				s.log.Warnf("%v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule poll: %w", err)
		}
	}
	return nil
}

func (s *Service) consume(ctx context.Context, sub <-chan model.RemoteCommand) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-sub:
			if !ok {
				return
			}
			s.handle(ctx, cmd)
		}
	}
}

func (s *Service) handle(ctx context.Context, cmd model.RemoteCommand) {
	if s.executor == nil {
		s.log.Infof("no executor attached, command %s (id=%s) left pending", cmd.Name, cmd.IDString())
		return
	}
	err := s.executor.Execute(ctx, cmd)
	if err == nil {
		return
	}
	s.log.Errorf("execute %s (id=%s): %v", cmd.Name, cmd.IDString(), err)
	if !s.cfg.Commands.Ack || !cmd.HasID() {
		return
	}
	if _, ackErr := s.acks.Ack(ctx, cmd, command.AckError, map[string]any{"error": err.Error()}); ackErr != nil {
		s.log.Errorf("ack %s: %v", cmd.IDString(), ackErr)
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.sched.IsRunning() {
			s.sched.Stop()
		}
		if s.relay != nil {
			s.relay.Disconnect()
		}
		s.bus.Close()
		errs = append(errs, coremetrics.Close(s.sink), s.poster.Close())
	})
	return errors.Join(errs...)
}
