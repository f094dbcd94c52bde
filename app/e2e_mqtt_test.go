//go:build integration

package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enginesim/core/factory"
	"github.com/kilianp07/enginesim/test/util"
)

func TestServicePublishesToMosquitto(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	broker, err := util.StartMosquitto(ctx)
	require.NoError(t, err)
	defer broker.Close()

	samples, err := util.CollectMessages(broker.URL, "it/samples")
	require.NoError(t, err)
	defer samples.Close()
	evs, err := util.CollectMessages(broker.URL, "it/events")
	require.NoError(t, err)
	defer evs.Close()

	cfg := testConfig()
	cfg.Simulation.Step = 10 * time.Minute
	cfg.Simulation.TickInterval = 10 * time.Millisecond
	// keep ticking past shutdown until the test stops the run
	cfg.Simulation.Duration = 1000 * time.Hour
	cfg.Metrics.PrometheusAddr = "127.0.0.1:19191"
	cfg.Sinks = []factory.ModuleConfig{
		{Type: "mqtt", Conf: map[string]any{
			"broker":       broker.URL,
			"topic_prefix": "it",
			"qos":          map[string]any{"sample": 1, "event": 1},
		}},
		{Type: "prometheus"},
	}
	svc, err := New(cfg, WithRandom(fixedRandom{0.5}))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	metricsCtx, mcancel := context.WithTimeout(ctx, util.MetricTimeout)
	defer mcancel()
	require.NoError(t, util.WaitForMetric(metricsCtx, "http://127.0.0.1:19191/metrics", "enginesim_samples_total"))

	require.Eventually(t, func() bool { return len(evs.Payloads()) >= 2 }, 30*time.Second, 50*time.Millisecond)
	stop()
	require.NoError(t, <-done)

	var kinds []string
	for _, p := range evs.Payloads() {
		var ev struct {
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(p, &ev))
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{"low_fuel_warning", "engine_shutdown"}, kinds)

	got := samples.Payloads()
	require.NotEmpty(t, got)
	var first struct {
		MessageID string `json:"message_id"`
		SpeedKmH  int    `json:"speed_kmh"`
	}
	require.NoError(t, json.Unmarshal(got[0], &first))
	assert.NotEmpty(t, first.MessageID)
	assert.LessOrEqual(t, first.SpeedKmH, 120)
}
