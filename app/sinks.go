package app

// Sink implementations register themselves with core/telemetry on import.
import (
	_ "github.com/kilianp07/enginesim/infra/jsonl"
	_ "github.com/kilianp07/enginesim/infra/mqtt"
	_ "github.com/kilianp07/enginesim/infra/thingspeak"
)
