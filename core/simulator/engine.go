package simulator

import (
	"context"

	"github.com/looplab/fsm"
)

// EngineState is the state of the simulated engine.
type EngineState string

const (
	Running EngineState = "running"
	Stopped EngineState = "stopped"
)

const eventFuelExhausted = "fuel_exhausted"

// engine is the two-state machine Running -> Stopped. There is no transition
// back: a stopped engine stays stopped for the simulator's lifetime.
type engine struct {
	fsm *fsm.FSM
}

func newEngine(onStop func()) *engine {
	e := &engine{}
	e.fsm = fsm.NewFSM(
		string(Running),
		fsm.Events{
			{Name: eventFuelExhausted, Src: []string{string(Running)}, Dst: string(Stopped)},
		},
		fsm.Callbacks{
			"enter_" + string(Stopped): func(_ context.Context, _ *fsm.Event) {
				if onStop != nil {
					onStop()
				}
			},
		},
	)
	return e
}

func (e *engine) state() EngineState { return EngineState(e.fsm.Current()) }

func (e *engine) running() bool { return e.fsm.Is(string(Running)) }

// stop moves the engine to Stopped. It reports whether a transition happened.
func (e *engine) stop() bool {
	return e.fsm.Event(context.Background(), eventFuelExhausted) == nil
}
