// Package util provides helper functions shared across integration tests.
//
// StartMosquitto runs a throwaway broker, CollectMessages records what the
// service publishes and WaitForMetric polls the Prometheus endpoint.
package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	MosquittoReadyTimeout = 5 * time.Second
	MetricTimeout         = 5 * time.Second

	pollInterval = 50 * time.Millisecond
	mqttPort     = "1883/tcp"
)

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`

// WaitForMetric polls metricsURL until its body contains substr.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		found, err := metricPresent(ctx, metricsURL, substr)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("metric %q not found: %w", substr, ctx.Err())
		case <-tick.C:
		}
	}
}

// metricPresent reports a connection failure as not found so the caller keeps
// polling while the server starts.
func metricPresent(ctx context.Context, metricsURL, substr string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, nil
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read metrics body: %w", err)
	}
	return strings.Contains(string(body), substr), nil
}

// Broker is a disposable Mosquitto container.
type Broker struct {
	URL  string
	cont tc.Container
}

// Close terminates the container.
func (b *Broker) Close() {
	_ = b.cont.Terminate(context.Background())
}

// StartMosquitto runs an anonymous Mosquitto broker and waits until it
// accepts MQTT connections.
func StartMosquitto(ctx context.Context) (*Broker, error) {
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{mqttPort},
		WaitingFor:   wait.ForListeningPort(mqttPort),
		Files: []tc.ContainerFile{{
			Reader:            strings.NewReader(mosquittoConf),
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		return nil, fmt.Errorf("start mosquitto: %w", err)
	}
	b := &Broker{cont: cont}
	endpoint, err := cont.PortEndpoint(ctx, mqttPort, "tcp")
	if err != nil {
		b.Close()
		return nil, err
	}
	b.URL = endpoint

	readyCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	if err := waitForMQTTReady(readyCtx, b.URL); err != nil {
		b.Close()
		return nil, fmt.Errorf("mosquitto not ready: %w", err)
	}
	return b, nil
}

func waitForMQTTReady(ctx context.Context, broker string) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("enginesim-ready-check")
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		cli := paho.NewClient(opts)
		if token := cli.Connect(); token.Wait() && token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Collector accumulates the payloads received on a subscription.
type Collector struct {
	mu       sync.Mutex
	payloads [][]byte
	cli      paho.Client
}

// CollectMessages connects a subscriber client to broker and subscribes to topic.
func CollectMessages(broker, topic string) (*Collector, error) {
	c := &Collector{}
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(fmt.Sprintf("collector-%d", time.Now().UnixNano()))
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	token := cli.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		c.mu.Lock()
		c.payloads = append(c.payloads, m.Payload())
		c.mu.Unlock()
	})
	if token.Wait() && token.Error() != nil {
		cli.Disconnect(100)
		return nil, token.Error()
	}
	c.cli = cli
	return c, nil
}

// Payloads returns a copy of the payloads received so far.
func (c *Collector) Payloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.payloads...)
}

// Close disconnects the subscriber client.
func (c *Collector) Close() {
	if c.cli != nil {
		c.cli.Disconnect(100)
	}
}
