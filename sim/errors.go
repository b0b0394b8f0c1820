package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleAgentReference marks a reference to a retired agent. Events and
	// cancellations that hit one are dropped; queries return it.
	ErrStaleAgentReference = errors.New("stale agent reference")

	// ErrMapVersionMismatch is returned when a snapshot is restored against a
	// different map than the one it was taken on.
	ErrMapVersionMismatch = errors.New("map version mismatch")

	// ErrInvariantViolation halts the simulator. Every later call returns it.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrUnknownTrip is returned for trip ids the simulator never issued.
	ErrUnknownTrip = errors.New("unknown trip")

	// ErrInvalidTrip is returned by SpawnTrip for malformed trip specs.
	ErrInvalidTrip = errors.New("invalid trip")

	// ErrNoTransitRoute fails a transit trip no bus route can carry.
	ErrNoTransitRoute = errors.New("no transit route")
)

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// asInvariant wraps err as an invariant violation unless it already is one.
func asInvariant(err error) error {
	if err == nil || errors.Is(err, ErrInvariantViolation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
}
