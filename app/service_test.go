package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/config"
	"github.com/kilianp07/ocppbridge/core/factory"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/test/util"
)

func testConfig(t *testing.T, base string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.API.BaseURL = base
	cfg.API.APIKey = "k"
	delay := 1.0
	cfg.API.BaseDelayMS = &delay
	cfg.Heartbeat.IntervalSeconds = 1
	cfg.Commands.PollIntervalSeconds = 1
	cfg.Commands.Ack = true
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

type recordingExecutor struct {
	mu   sync.Mutex
	cmds []model.RemoteCommand
	err  error
}

func (r *recordingExecutor) Execute(_ context.Context, cmd model.RemoteCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return r.err
}

func (r *recordingExecutor) seen() []model.RemoteCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RemoteCommand(nil), r.cmds...)
}

func runService(t *testing.T, svc *Service) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("service did not stop")
		}
		assert.NoError(t, svc.Close())
	}
}

func TestServiceBootsPollsAndHeartbeats(t *testing.T) {
	backend := util.NewBackend()
	defer backend.Close()
	backend.QueueCommand(map[string]any{
		"id": 4, "command": model.CommandRemoteStart,
		"payload": map[string]any{"idTag": "TEST123"}, "connector_id": 1,
	})

	exec := &recordingExecutor{}
	svc, err := New(testConfig(t, backend.BaseURL()), WithExecutor(exec))
	require.NoError(t, err)
	stop := runService(t, svc)

	require.Eventually(t, func() bool { return len(exec.seen()) == 1 }, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return len(backend.Calls("heartbeat")) >= 1 }, 3*time.Second, 20*time.Millisecond)
	stop()

	boots := backend.Calls("boot-notification")
	require.Len(t, boots, 1)
	assert.Equal(t, "k", boots[0].APIKey)
	assert.Equal(t, "Zora1", boots[0].Body["station_code"])
	assert.Equal(t, "AC3000", boots[0].Body["model"])

	polls := backend.Calls("commands/poll")
	require.NotEmpty(t, polls)
	assert.Equal(t, "Zora1", polls[0].Query["station_code"])
	assert.Equal(t, "1", polls[0].Query["connector"])

	cmd := exec.seen()[0]
	assert.Equal(t, model.CommandRemoteStart, cmd.Name)
	assert.Equal(t, "4", cmd.IDString())
	assert.Equal(t, "TEST123", cmd.Payload["idTag"])
	assert.Empty(t, backend.Calls("commands/ack"))
}

func TestServiceAcksFailedExecution(t *testing.T) {
	backend := util.NewBackend()
	defer backend.Close()
	backend.QueueCommand(map[string]any{"id": "c9", "action": model.CommandRemoteStop})

	exec := &recordingExecutor{err: errors.New("connector busy")}
	cfg := testConfig(t, backend.BaseURL())
	off := false
	cfg.Heartbeat.BootOnStart = &off
	svc, err := New(cfg, WithExecutor(exec))
	require.NoError(t, err)
	stop := runService(t, svc)

	require.Eventually(t, func() bool { return len(backend.Calls("commands/ack")) == 1 }, 3*time.Second, 20*time.Millisecond)
	stop()

	ack := backend.Calls("commands/ack")[0]
	assert.Equal(t, "c9", ack.Body["id"])
	assert.Equal(t, "error", ack.Body["status"])
	assert.Equal(t, map[string]any{"error": "connector busy"}, ack.Body["detail"])
	assert.Empty(t, backend.Calls("boot-notification"))
}

func TestServiceSurvivesBackendErrors(t *testing.T) {
	backend := util.NewBackend()
	defer backend.Close()
	backend.FailNext("boot-notification", 400)

	cfg := testConfig(t, backend.BaseURL())
	cfg.Commands.Mode = config.CommandsOff
	svc, err := New(cfg)
	require.NoError(t, err)
	stop := runService(t, svc)

	require.Eventually(t, func() bool { return len(backend.Calls("heartbeat")) >= 1 }, 3*time.Second, 20*time.Millisecond)
	stop()
	assert.Len(t, backend.Calls("boot-notification"), 1, "400 is not retried")
	assert.Empty(t, backend.Calls("commands/poll"))
}

var closedSinks atomic.Int32

type closingSink struct{ coremetrics.NopSink }

func (closingSink) Close() error {
	closedSinks.Add(1)
	return nil
}

func init() {
	_ = coremetrics.RegisterMetricsSink("closing", func(map[string]any) (coremetrics.MetricsSink, error) {
		return closingSink{}, nil
	})
}

func TestNewReleasesSinkOnFailure(t *testing.T) {
	closedSinks.Store(0)
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "closing"}}
	cfg.API.BaseURL = "ftp://example.com"
	_, err := New(cfg)
	require.ErrorContains(t, err, "poster")
	assert.EqualValues(t, 1, closedSinks.Load())

	cfg = testConfig(t, "http://127.0.0.1:1")
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "closing"}}
	cfg.Station.Code = " "
	_, err = New(cfg)
	require.ErrorContains(t, err, "bridge")
	assert.EqualValues(t, 2, closedSinks.Load())

	cfg = testConfig(t, "http://127.0.0.1:1")
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "closing"}, {Type: "unknown"}}
	_, err = New(cfg)
	require.Error(t, err)
	assert.EqualValues(t, 3, closedSinks.Load())
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t, "ftp://example.com")
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t, "http://127.0.0.1:1")
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "unknown"}}
	_, err = New(cfg)
	assert.Error(t, err)
}
