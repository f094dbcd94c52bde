package telemetry

import (
	"context"
	"errors"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/model"
)

// MultiSink fans samples out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// Send forwards the sample to every sink. Every sink is attempted; the
// returned error joins the individual failures.
func (m *MultiSink) Send(ctx context.Context, s model.Sample) error {
	var errs []error
	for _, sk := range m.Sinks {
		if err := sk.Send(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordEvent forwards the event to sinks implementing EventRecorder.
func (m *MultiSink) RecordEvent(ctx context.Context, ev events.VehicleEvent) error {
	var errs []error
	for _, sk := range m.Sinks {
		if rec, ok := sk.(EventRecorder); ok {
			if err := rec.RecordEvent(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordDelivery forwards the delivery outcome to sinks implementing
// DeliveryRecorder.
func (m *MultiSink) RecordDelivery(err error) {
	for _, sk := range m.Sinks {
		if rec, ok := sk.(DeliveryRecorder); ok {
			rec.RecordDelivery(err)
		}
	}
}

// Fetch returns the history of the first sink implementing HistoryFetcher.
func (m *MultiSink) Fetch(ctx context.Context, limit int) ([]model.Sample, error) {
	for _, sk := range m.Sinks {
		if f, ok := sk.(HistoryFetcher); ok {
			return f.Fetch(ctx, limit)
		}
	}
	return nil, ErrNoHistory
}

// Close closes every sink that supports it.
func (m *MultiSink) Close() error {
	var errs []error
	for _, sk := range m.Sinks {
		if err := Close(sk); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
