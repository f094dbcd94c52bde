package metrics

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/factory"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/core/telemetry"
	"github.com/kilianp07/enginesim/infra/logger"
)

// InfluxConfig holds the InfluxDB v2 connection settings.
type InfluxConfig struct {
	URL     string        `json:"url"`
	Token   string        `json:"token"`
	Org     string        `json:"org"`
	Bucket  string        `json:"bucket"`
	Vehicle string        `json:"vehicle"`
	Timeout time.Duration `json:"timeout"`
}

// Validate checks the mandatory fields.
func (c InfluxConfig) Validate() error {
	if c.URL == "" || c.Org == "" || c.Bucket == "" {
		return fmt.Errorf("influx: url, org and bucket are required")
	}
	return nil
}

// InfluxSink writes samples and vehicle events to an InfluxDB instance using
// the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	vehicle  string
	log      logger.Logger
	now      func() time.Time
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: factory.DurationOr(cfg.Timeout, 5*time.Second)}))
	vehicle := cfg.Vehicle
	if vehicle == "" {
		vehicle = "car-1"
	}
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		vehicle:  vehicle,
		log:      logger.New("influx-sink"),
		now:      time.Now,
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// telemetry.NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) telemetry.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), factory.DurationOr(cfg.Timeout, 5*time.Second))
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return telemetry.NopSink{}
	}
	return sink
}

// Send writes the sample as a vehicle_sample point.
func (s *InfluxSink) Send(ctx context.Context, smp model.Sample) error {
	p := write.NewPointWithMeasurement("vehicle_sample").
		AddTag("vehicle", s.vehicle).
		AddField("speed_kmh", smp.SpeedKmH).
		AddField("rpm", smp.RPM).
		AddField("fuel_liters", round3(smp.FuelLiters)).
		AddField("fuel_percent", round3(smp.FuelPercent)).
		AddField("engine_temp_c", smp.EngineTempC).
		AddField("engine_on", smp.EngineOn).
		AddField("elapsed_s", smp.Elapsed.Seconds()).
		SetTime(s.now())
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// RecordEvent writes the event as a vehicle_event point.
func (s *InfluxSink) RecordEvent(ctx context.Context, ev events.VehicleEvent) error {
	p := write.NewPointWithMeasurement("vehicle_event").
		AddTag("vehicle", s.vehicle).
		AddTag("kind", ev.Kind.String()).
		AddField("message", ev.Message()).
		AddField("fuel_liters", round3(ev.FuelLiters)).
		AddField("elapsed_s", ev.Elapsed.Seconds()).
		SetTime(s.now())
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the HTTP resources of the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
