// Package sim provides the discrete-event traffic simulation engine.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - simulator.go: the Simulator, its event loop and fatal-halt handling
//   - handlers.go: one handler per scheduler event kind
//   - trips.go: trip lifecycle (spawn, legs, finish, fail, cancel)
//   - movement.go: lane traversal, turn arbitration and parking maneuvers
//
// # Architecture
//
// The sim package orchestrates; the domain models live in sub-packages:
//   - sim/mapmodel/: immutable road network, signal programs, parking inventory
//   - sim/pathfind/: multimodal A* routing under a mutable cost overlay
//   - sim/scheduler/: the global event queue with per-actor cancellation
//   - sim/arbiter/: intersection right-of-way (stop sign, signal, priority)
//   - sim/parking/: spot reservation and occupancy
//   - sim/agent/: cars, pedestrians, persons, trips and their state machines
//   - sim/eventlog/: the append-only event log and its persistent sinks
//   - sim/metrics/: end-of-run statistics and Prometheus collectors
//   - sim/workload/: scenario files and random trip generation
//
// Sub-packages never import sim; sim wires them together inside event handlers.
//
// # Time and Determinism
//
// Time is an int64 count of microsecond ticks. Events are ordered by
// (time, actor, kind rank, sequence number), the simulation loop draws no
// random numbers and every collection iterated while handling an event has a
// fixed order. A map, a config and a sequence of control calls therefore
// produce byte-identical event logs.
//
// # Errors
//
// Routing and parking failures fail the affected trip and the run goes on.
// Violated invariants (conflicting grants, double-booked spots, illegal state
// transitions) halt the simulator: the error wraps ErrInvariantViolation and
// every later call returns it.
package sim
