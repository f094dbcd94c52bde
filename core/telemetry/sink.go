package telemetry

import (
	"context"
	"errors"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/model"
)

// ErrNoHistory is returned by HistoryFetcher implementations when the remote
// service holds no samples.
var ErrNoHistory = errors.New("no history available")

// ErrThrottled marks a sample a sink deliberately did not deliver because of
// a rate limit. Sinks wrap it in their own errors.
var ErrThrottled = errors.New("delivery throttled")

// Throttled reports whether err is non-nil and every failure it carries,
// including each error joined by MultiSink, is a throttled delivery.
func Throttled(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs := joined.Unwrap()
		for _, e := range errs {
			if !Throttled(e) {
				return false
			}
		}
		return len(errs) > 0
	}
	return errors.Is(err, ErrThrottled)
}

// Sink delivers a sample to a remote collector. A failed delivery is reported
// through the returned error; the caller decides what to do with it.
type Sink interface {
	Send(ctx context.Context, s model.Sample) error
}

// HistoryFetcher is implemented by sinks able to return previously stored
// samples, oldest first.
type HistoryFetcher interface {
	Fetch(ctx context.Context, limit int) ([]model.Sample, error)
}

// EventRecorder is implemented by sinks that also record vehicle events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, ev events.VehicleEvent) error
}

// DeliveryRecorder is implemented by sinks that account for the outcome of
// every sample delivery made by the service.
type DeliveryRecorder interface {
	RecordDelivery(err error)
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) Send(context.Context, model.Sample) error               { return nil }
func (NopSink) RecordEvent(context.Context, events.VehicleEvent) error { return nil }

// Close releases resources held by s when it implements io.Closer-like
// semantics.
func Close(s Sink) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
