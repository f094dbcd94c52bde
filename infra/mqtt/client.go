package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/infra/logger"
)

// DefaultTopicPrefix is used when Config.TopicPrefix is empty.
const DefaultTopicPrefix = "enginesim"

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	Retain      bool            `json:"retain"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

// Validate checks the mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	if c.MaxRetries < 0 || c.BackoffMS < 0 {
		return fmt.Errorf("mqtt: retries and backoff must not be negative")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher sends samples and vehicle events to an MQTT broker.
type Publisher struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	retain     bool
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPublisher connects to the MQTT broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "enginesim-" + uuid.NewString()[:8]
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_publisher")
	p := &Publisher{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if p.prefix == "" {
		p.prefix = DefaultTopicPrefix
	}
	if p.maxRetries == 0 {
		p.maxRetries = 3
	}
	if p.backoff == 0 {
		p.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// SampleTopic is the topic samples are published on.
func (p *Publisher) SampleTopic() string { return p.prefix + "/samples" }

// EventTopic is the topic vehicle events are published on.
func (p *Publisher) EventTopic() string { return p.prefix + "/events" }

type samplePayload struct {
	MessageID      string  `json:"message_id"`
	Timestamp      int64   `json:"timestamp"`
	ElapsedSeconds float64 `json:"elapsed_s"`
	SpeedKmH       int     `json:"speed_kmh"`
	RPM            int     `json:"rpm"`
	FuelLiters     float64 `json:"fuel_liters"`
	FuelPercent    float64 `json:"fuel_percent"`
	EngineTempC    int     `json:"engine_temp_c"`
	EngineOn       bool    `json:"engine_on"`
}

type eventPayload struct {
	MessageID      string  `json:"message_id"`
	Timestamp      int64   `json:"timestamp"`
	Kind           string  `json:"kind"`
	Message        string  `json:"message"`
	ElapsedSeconds float64 `json:"elapsed_s"`
	FuelLiters     float64 `json:"fuel_liters"`
	FuelPercent    float64 `json:"fuel_percent"`
}

// Send publishes the sample as JSON on SampleTopic.
func (p *Publisher) Send(ctx context.Context, s model.Sample) error {
	payload, err := json.Marshal(samplePayload{
		MessageID:      uuid.NewString(),
		Timestamp:      time.Now().UnixMilli(),
		ElapsedSeconds: s.Elapsed.Seconds(),
		SpeedKmH:       s.SpeedKmH,
		RPM:            s.RPM,
		FuelLiters:     s.FuelLiters,
		FuelPercent:    s.FuelPercent,
		EngineTempC:    s.EngineTempC,
		EngineOn:       s.EngineOn,
	})
	if err != nil {
		return err
	}
	return p.publish(ctx, p.SampleTopic(), p.qosFor("sample"), payload)
}

// RecordEvent publishes the event as JSON on EventTopic.
func (p *Publisher) RecordEvent(ctx context.Context, ev events.VehicleEvent) error {
	payload, err := json.Marshal(eventPayload{
		MessageID:      uuid.NewString(),
		Timestamp:      time.Now().UnixMilli(),
		Kind:           ev.Kind.String(),
		Message:        ev.Message(),
		ElapsedSeconds: ev.Elapsed.Seconds(),
		FuelLiters:     ev.FuelLiters,
		FuelPercent:    ev.FuelPercent,
	})
	if err != nil {
		return err
	}
	return p.publish(ctx, p.EventTopic(), p.qosFor("event"), payload)
}

func (p *Publisher) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *Publisher) publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, p.retain, payload)
		if err := waitToken(ctx, token); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", topic, ctx.Err())
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// waitToken blocks until token completes or ctx ends. A completed token wins
// over an expired context.
func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return nil
	default:
	}
	select {
	case <-token.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close gracefully closes the MQTT connection.
func (p *Publisher) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}
