// Package events defines the vehicle events emitted by the simulator.
//
// Available event kinds:
//   - LowFuelWarning: remaining fuel dropped below the warning threshold
//   - EngineShutdown: fuel exhausted, the engine is stopped for good
package events
