// Package eventlog records the append-only history of a simulation run.
// It does not depend on sim/; it stores pure data types and
// forwards them to optional persistent sinks.
package eventlog

import (
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// Kind classifies a record.
type Kind uint8

const (
	TripSpawned Kind = iota
	TripPhase
	Departed
	LaneEntered
	TurnRequested
	TurnDeferred
	TurnGranted
	TurnCleared
	ParkingTargeted
	ParkingReserved
	ParkingRejected
	Parked
	Unparked
	Rerouted
	Arrived
	TripFinished
	TripCancelled
	TripFailed
	SignalPhase
	CongestionChanged
	SignalRetimed
	BusDispatched
	BusBoarded
	BusAlighted
)

var kindNames = [...]string{
	"trip_spawned", "trip_phase", "departed", "lane_entered",
	"turn_requested", "turn_deferred", "turn_granted", "turn_cleared",
	"parking_targeted", "parking_reserved", "parking_rejected", "parked", "unparked",
	"rerouted", "arrived", "trip_finished", "trip_cancelled", "trip_failed",
	"signal_phase", "congestion_changed", "signal_retimed",
	"bus_dispatched", "bus_boarded", "bus_alighted",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("invalid record kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown record kind %q", b)
}

// NumKinds is the number of record kinds.
const NumKinds = len(kindNames)

// Record is one entry of the event log. Optional fields are pointers so that
// zero ids are not confused with absent ones.
type Record struct {
	Seq    uint64             `json:"seq"`
	Time   int64              `json:"time"`
	Kind   Kind               `json:"kind"`
	Agent  *agent.AgentID     `json:"agent,omitempty"`
	Trip   *agent.TripID      `json:"trip,omitempty"`
	Pos    *mapmodel.Position `json:"pos,omitempty"`
	Detail string             `json:"detail,omitempty"`
}

// New starts a record of the given kind at time t.
func New(t int64, kind Kind) Record { return Record{Time: t, Kind: kind} }

// WithAgent sets the agent of the record.
func (r Record) WithAgent(id agent.AgentID) Record {
	r.Agent = &id
	return r
}

// WithTrip sets the trip of the record.
func (r Record) WithTrip(id agent.TripID) Record {
	r.Trip = &id
	return r
}

// WithPos sets the position of the record.
func (r Record) WithPos(p mapmodel.Position) Record {
	r.Pos = &p
	return r
}

// Withf sets the free-form detail of the record.
func (r Record) Withf(format string, args ...any) Record {
	r.Detail = fmt.Sprintf(format, args...)
	return r
}

func (r Record) String() string {
	s := fmt.Sprintf("#%d t=%d %s", r.Seq, r.Time, r.Kind)
	if r.Agent != nil {
		s += " " + r.Agent.String()
	}
	if r.Trip != nil {
		s += " " + r.Trip.String()
	}
	if r.Pos != nil {
		s += " at " + r.Pos.String()
	}
	if r.Detail != "" {
		s += ": " + r.Detail
	}
	return s
}
