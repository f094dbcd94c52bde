package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/enginesim/api"
	"github.com/kilianp07/enginesim/config"
	"github.com/kilianp07/enginesim/core/analyzer"
	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/core/simulator"
	"github.com/kilianp07/enginesim/core/telemetry"
	"github.com/kilianp07/enginesim/infra/logger"
	"github.com/kilianp07/enginesim/infra/metrics"
	"github.com/kilianp07/enginesim/infra/ws"
	"github.com/kilianp07/enginesim/internal/eventbus"
)

// collectorDrainTimeout bounds how long Run waits for pending events to be
// recorded once the loop has stopped.
const collectorDrainTimeout = 5 * time.Second

// Service drives the simulator, keeps the rolling window and forwards samples
// and events to the configured sinks.
type Service struct {
	cfg   *config.Config
	runID string
	log   logger.Logger

	sim  *simulator.Simulator
	bus  *eventbus.Bus[events.VehicleEvent]
	sink telemetry.Sink
	hub  *ws.Hub
	api  *api.Server

	mu       sync.RWMutex
	win      *analyzer.Analyzer
	last     *model.Sample
	steps    int
	failures int
	skipped  int
}

// Option customizes a Service.
type Option func(*options)

type options struct {
	sink telemetry.Sink
	rnd  simulator.Random
}

// WithSink replaces the sinks built from the configuration.
func WithSink(s telemetry.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithRandom replaces the seeded random source.
func WithRandom(r simulator.Random) Option {
	return func(o *options) { o.rnd = r }
}

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	runID := uuid.NewString()
	log := logger.New("service")

	bus := eventbus.New[events.VehicleEvent]()
	rnd := o.rnd
	if rnd == nil {
		rnd = simulator.NewRandom(cfg.Simulation.Seed)
	}
	sim, err := simulator.New(cfg.Simulation.Vehicle, simulator.WithRandom(rnd), simulator.WithPublisher(bus))
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	sink := o.sink
	if sink == nil {
		sink, err = telemetry.NewSink(cfg.Sinks)
		if err != nil {
			return nil, fmt.Errorf("sinks: %w", err)
		}
	}

	s := &Service{
		cfg:   cfg,
		runID: runID,
		log:   log,
		sim:   sim,
		bus:   bus,
		sink:  sink,
		win:   analyzer.New(cfg.Analyzer.WindowSize),
	}
	if cfg.API.Enabled {
		s.hub = ws.NewHub(logger.New("ws"))
		s.hub.SetInitDataProvider(func() any { return s.Status() })
		s.sink = telemetry.NewMultiSink(sink, s.hub)
		s.api = api.NewServer(s, s.hub, logger.New("api"))
	}
	log.Infow("service created", map[string]any{
		"run_id": runID,
		"sinks":  len(cfg.Sinks),
		"step":   cfg.Simulation.Step.String(),
		"api":    cfg.API.Enabled,
	})
	return s, nil
}

// RunID identifies this simulation run.
func (s *Service) RunID() string { return s.runID }

// Run drives the simulator until the context is canceled or a configured stop
// condition is met.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var rec telemetry.EventRecorder
	if r, ok := s.sink.(telemetry.EventRecorder); ok {
		rec = r
	}
	collected := metrics.StartEventCollector(runCtx, s.bus, rec, logger.New("events"))

	if s.hub != nil {
		go s.hub.Run(runCtx)
	}
	if s.api != nil {
		go func() {
			if err := s.api.ListenAndServe(runCtx, s.cfg.API.Address); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(runCtx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	s.loop(ctx)

	s.bus.Close()
	select {
	case <-collected:
	case <-time.After(collectorDrainTimeout):
		s.log.Warnf("event collector did not drain in %s", collectorDrainTimeout)
	}
	s.log.Infof("%s", s.SummaryText())
	return nil
}

func (s *Service) loop(ctx context.Context) {
	var tick <-chan time.Time
	if d := s.cfg.Simulation.TickInterval; d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		tick = t.C
	}
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}
		s.Step(ctx)
		if reason := s.stopReason(); reason != "" {
			s.log.Infof("stopping: %s", reason)
			return
		}
	}
}

func (s *Service) stopReason() string {
	sc := s.cfg.Simulation
	if sc.Duration > 0 && s.sim.Elapsed() >= sc.Duration {
		return fmt.Sprintf("simulated %s", sc.Duration)
	}
	if s.sim.State() == simulator.Stopped && (sc.StopOnShutdown || sc.Duration <= 0) {
		return "engine stopped"
	}
	return ""
}

// Step advances the simulator by one configured step, records the sample and
// delivers it to the sinks. Delivery failures are logged and counted; samples
// a sink throttled are counted as skipped.
func (s *Service) Step(ctx context.Context) model.Sample {
	smp := s.sim.Step(s.cfg.Simulation.Step)

	s.mu.Lock()
	s.win.Add(smp)
	s.last = &smp
	s.steps++
	steps := s.steps
	s.mu.Unlock()

	s.log.Debugf("%s", smp.Line())

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.Simulation.SendTimeout)
	err := s.sink.Send(sendCtx, smp)
	cancel()
	if rec, ok := s.sink.(telemetry.DeliveryRecorder); ok {
		rec.RecordDelivery(err)
	}
	switch {
	case err == nil:
	case telemetry.Throttled(err):
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.log.Debugf("sample skipped: %v", err)
	default:
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		s.log.Errorf("send sample: %v", err)
	}

	if every := s.cfg.Analyzer.SummaryEvery; every > 0 && steps%every == 0 {
		s.log.Infof("%s", s.SummaryText())
	}
	return smp
}

// Summary reports over the rolling window.
func (s *Service) Summary() (analyzer.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.win.Summary()
}

// SummaryText renders the summary, or analyzer.NoSamplesMessage.
func (s *Service) SummaryText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analyzer.Format(s.win)
}

// Samples returns the rolling window, oldest first.
func (s *Service) Samples() []model.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.win.Samples()
}

// Skipped returns the number of samples the sinks throttled.
func (s *Service) Skipped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}

// Failures returns the number of failed sample deliveries.
func (s *Service) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Status describes the run. The engine state and elapsed time are derived
// from the last sample so the simulator is only touched by the loop.
func (s *Service) Status() api.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := api.Status{
		RunID:       s.runID,
		EngineState: string(simulator.Running),
		Steps:       s.steps,
		Failures:    s.failures,
		Skipped:     s.skipped,
	}
	if s.last != nil {
		last := *s.last
		st.Last = &last
		st.Elapsed = last.Elapsed
		if !last.EngineOn {
			st.EngineState = string(simulator.Stopped)
		}
	}
	return st
}

// Close releases resources held by the sinks.
func (s *Service) Close() error {
	return telemetry.Close(s.sink)
}
