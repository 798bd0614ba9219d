package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/delivery"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "ocpp", cfg.TopicPrefix)
	assert.NotEmpty(t, cfg.ClientID)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Error(t, cfg.Validate(), "broker is required")

	cfg.Broker = "tcp://localhost:1883"
	assert.NoError(t, cfg.Validate())
	cfg.QoS = map[string]byte{QoSOut: 3}
	assert.Error(t, cfg.Validate())
}

func TestTopicsFor(t *testing.T) {
	got := TopicsFor("/ocpp/", "Zora1")
	assert.Equal(t, Topics{
		In:     "ocpp/Zora1/commands/in",
		Out:    "ocpp/Zora1/commands/out",
		Result: "ocpp/Zora1/commands/result",
	}, got)
}

type publisherFunc func(model.RemoteCommand)

func (f publisherFunc) Publish(c model.RemoteCommand) { f(c) }

type reporterFunc func(context.Context, command.Result) (delivery.Response, error)

func (f reporterFunc) Report(ctx context.Context, r command.Result) (delivery.Response, error) {
	return f(ctx, r)
}

type countingSink struct {
	coremetrics.NopSink
	mu       sync.Mutex
	commands []coremetrics.CommandEvent
}

func (s *countingSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.mu.Lock()
	s.commands = append(s.commands, ev)
	s.mu.Unlock()
	return nil
}

func withMockClient(t *testing.T, mc *mockClient) {
	t.Helper()
	prev := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = prev })
}

var station = model.StationIdentity{Code: "Zora1", Connector: 1}

func TestRelaySubscribesWithQoS(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	report := reporterFunc(func(context.Context, command.Result) (delivery.Response, error) { return nil, nil })
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", QoS: map[string]byte{QoSIn: 2, QoSResult: 0}}
	r, err := NewCommandRelay(cfg, station, nil, report, nil)
	require.NoError(t, err)
	defer r.Disconnect()

	require.Len(t, mc.subscribed, 2)
	assert.Equal(t, "ocpp/Zora1/commands/in", mc.subscribed[0].topic)
	assert.Equal(t, byte(2), mc.subscribed[0].qos)
	assert.Equal(t, "ocpp/Zora1/commands/result", mc.subscribed[1].topic)
	assert.Equal(t, byte(0), mc.subscribed[1].qos)
}

func TestRelayWithoutReporterSkipsResultTopic(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	_, err := NewCommandRelay(Config{Broker: "tcp://localhost:1883"}, station, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, mc.subscribed, 1)
	assert.Equal(t, "ocpp/Zora1/commands/in", mc.subscribed[0].topic)
}

func TestRelayNormalizesPushedCommand(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	var got []model.RemoteCommand
	sink := &countingSink{}
	r, err := NewCommandRelay(Config{Broker: "tcp://localhost:1883"}, station,
		publisherFunc(func(c model.RemoteCommand) { got = append(got, c) }), nil, sink)
	require.NoError(t, err)

	mc.deliver(t, r.Topics().In, `{"command":{"id":"c1","command":"RemoteStopTransaction","connector_id":"1"}}`)
	mc.deliver(t, r.Topics().In, `{"ok":true,"command":null}`)
	mc.deliver(t, r.Topics().In, `not json`)

	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, model.CommandRemoteStop, got[0].Name)
	require.NotNil(t, got[0].Connector)
	assert.Equal(t, 1, *got[0].Connector)
	require.Len(t, sink.commands, 1)
	assert.Equal(t, SourceMQTT, sink.commands[0].Source)
}

func TestRelayReportsResults(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	var got []command.Result
	report := reporterFunc(func(_ context.Context, res command.Result) (delivery.Response, error) {
		got = append(got, res)
		return delivery.Response{"ok": true}, nil
	})
	r, err := NewCommandRelay(Config{Broker: "tcp://localhost:1883"}, station, nil, report, nil)
	require.NoError(t, err)

	mc.deliver(t, r.Topics().Result, `{"id":42,"status":"ack","detail":{"transactionId":"tx-9"}}`)
	mc.deliver(t, r.Topics().Result, `{broken`)

	require.Len(t, got, 1)
	assert.Equal(t, json.Number("42"), got[0].ID)
	assert.Equal(t, command.AckAccepted, got[0].Status)
	assert.Equal(t, "tx-9", got[0].Detail["transactionId"])
}

func TestPublishCommandRetries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail"), nil}}
	withMockClient(t, mc)
	r, err := NewCommandRelay(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 10, QoS: map[string]byte{QoSOut: 2}}, station, nil, nil, nil)
	require.NoError(t, err)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error { slept = append(slept, d); return nil }

	c := 1
	require.NoError(t, r.PublishCommand(context.Background(), model.RemoteCommand{ID: "c1", Name: model.CommandRemoteStart, Payload: map[string]any{"idTag": "TAG"}, Connector: &c}))
	require.Len(t, mc.published, 2)
	assert.Equal(t, "ocpp/Zora1/commands/out", mc.published[1].topic)
	assert.Equal(t, byte(2), mc.published[1].qos)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, slept)

	var body map[string]any
	require.NoError(t, json.Unmarshal(mc.published[1].payload, &body))
	assert.Equal(t, "RemoteStartTransaction", body["name"])
	assert.Equal(t, 1.0, body["connector"])
}

func TestPublishCommandGivesUp(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail}}
	withMockClient(t, mc)
	r, err := NewCommandRelay(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 10}, station, nil, nil, nil)
	require.NoError(t, err)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error { slept = append(slept, d); return nil }

	err = r.PublishCommand(context.Background(), model.RemoteCommand{Name: model.CommandRemoteStop})
	require.ErrorIs(t, err, fail)
	assert.Len(t, mc.published, 3)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, slept)
}

func TestPublishCommandStopsOnCancel(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail}}
	withMockClient(t, mc)
	r, err := NewCommandRelay(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 60000}, station, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	start := time.Now()
	err = r.PublishCommand(ctx, model.RemoteCommand{Name: model.CommandRemoteStop})
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, fail)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, mc.published, 1)
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}
	r, err := NewCommandRelay(cfg, station, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "lwt", mc.opts.WillTopic)
	assert.Equal(t, "bye", string(mc.opts.WillPayload))
	r.Disconnect()
	assert.Empty(t, mc.published)
}

func TestConnectError(t *testing.T) {
	mc := &mockClient{connectErr: errors.New("refused")}
	withMockClient(t, mc)
	_, err := NewCommandRelay(Config{Broker: "tcp://localhost:1883"}, station, nil, nil, nil)
	assert.EqualError(t, err, "refused")
}

// mockClient implements pahoClient and paho.Client for tests
type mockClient struct {
	opts       *paho.ClientOptions
	connectErr error
	handlers   map[string]paho.MessageHandler
	subscribed []struct {
		topic string
		qos   byte
	}
	published []struct {
		topic   string
		qos     byte
		payload []byte
	}
	publishErrs []error
}

func (m *mockClient) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	h, ok := m.handlers[topic]
	require.True(t, ok, "no handler for %s", topic)
	h(m, mockMessage{topic: topic, p: []byte(payload)})
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, struct {
		topic   string
		qos     byte
		payload []byte
	}{topic, qos, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, h paho.MessageHandler) paho.Token {
	if m.handlers == nil {
		m.handlers = map[string]paho.MessageHandler{}
	}
	m.handlers[topic] = h
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
