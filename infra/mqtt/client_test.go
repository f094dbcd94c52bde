package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/factory"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/core/telemetry"
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

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
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

	opts, err = NewClientOptions(Config{Broker: "tcp://localhost:1883", AuthMethod: "tls", Username: "u"})
	require.NoError(t, err)
	assert.Empty(t, opts.Username)
}

func TestNewPublisherRequiresBroker(t *testing.T) {
	_, err := NewPublisher(Config{})
	assert.Error(t, err)
}

func TestConnectError(t *testing.T) {
	withMock(t, &mockClient{connectErr: fmt.Errorf("refused")})
	_, err := NewPublisher(Config{Broker: "tcp://localhost:1883"})
	assert.ErrorContains(t, err, "refused")
}

func TestSendPublishesSample(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", TopicPrefix: "car/1/", QoS: map[string]byte{"sample": 1, "event": 2}}
	pub, err := NewPublisher(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, mc.opts.ClientID)

	s := model.NewSample(2440, 60, 31.5, 50, 92, 40*time.Second, true)
	require.NoError(t, pub.Send(context.Background(), s))
	require.Len(t, mc.published, 1)
	msg := mc.published[0]
	assert.Equal(t, "car/1/samples", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var got samplePayload
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.NotEmpty(t, got.MessageID)
	assert.Equal(t, 60, got.SpeedKmH)
	assert.Equal(t, 2440, got.RPM)
	assert.InDelta(t, 63.0, got.FuelPercent, 1e-9)
	assert.InDelta(t, 40.0, got.ElapsedSeconds, 1e-9)
	assert.True(t, got.EngineOn)
}

func TestRecordEventPublishesEvent(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", QoS: map[string]byte{"event": 2}})
	require.NoError(t, err)

	ev := events.VehicleEvent{Kind: events.EngineShutdown, Elapsed: time.Minute}
	require.NoError(t, pub.RecordEvent(context.Background(), ev))
	require.Len(t, mc.published, 1)
	assert.Equal(t, DefaultTopicPrefix+"/events", mc.published[0].topic)
	assert.Equal(t, byte(2), mc.published[0].qos)

	var got eventPayload
	require.NoError(t, json.Unmarshal(mc.published[0].payload, &got))
	assert.Equal(t, "engine_shutdown", got.Kind)
	assert.Equal(t, ev.Message(), got.Message)
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}
	pub, err := NewPublisher(cfg)
	require.NoError(t, err)
	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "lwt", mc.opts.WillTopic)
	assert.Equal(t, "bye", string(mc.opts.WillPayload))
	require.NoError(t, pub.Close())
	assert.Empty(t, mc.published)
	assert.True(t, mc.disconnected)
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	require.NoError(t, pub.Send(context.Background(), model.Sample{}))
	assert.Len(t, mc.published, 2)
}

func TestRetriesExhausted(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail}}
	withMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1})
	require.NoError(t, err)
	err = pub.Send(context.Background(), model.Sample{})
	assert.ErrorIs(t, err, fail)
	assert.Len(t, mc.published, 3)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail}}
	withMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 10000})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = pub.Send(ctx, model.Sample{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, mc.published, 1)
}

func TestSendHonoursDeadlineOnStalledBroker(t *testing.T) {
	mc := &mockClient{stalled: true}
	withMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", QoS: map[string]byte{"sample": 1}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pub.Send(ctx, model.Sample{}) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked past its deadline")
	}
	assert.Len(t, mc.published, 1)
}

func TestRegisteredAsSink(t *testing.T) {
	withMock(t, &mockClient{})
	s, err := telemetry.NewSink([]factory.ModuleConfig{{
		Type: "mqtt",
		Conf: map[string]any{"broker": "tcp://localhost:1883", "topic_prefix": "x", "backoff_ms": "5"},
	}})
	require.NoError(t, err)
	pub, ok := s.(*Publisher)
	require.True(t, ok)
	assert.Equal(t, "x/samples", pub.SampleTopic())
	assert.Equal(t, 5*time.Millisecond, pub.backoff)
	var _ telemetry.EventRecorder = pub
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts         *paho.ClientOptions
	published    []published
	publishErrs  []error
	connectErr   error
	disconnected bool
	// stalled makes Publish return tokens that never complete.
	stalled bool
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) { m.disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, published{topic: topic, qos: qos, payload: b})
	if m.stalled {
		return stalledToken{}
	}
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type stalledToken struct{}

func (stalledToken) Wait() bool                     { select {} }
func (stalledToken) WaitTimeout(time.Duration) bool { return false }
func (stalledToken) Done() <-chan struct{}          { return nil }
func (stalledToken) Error() error                   { return nil }
