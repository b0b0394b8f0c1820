package agent

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned by Next for a (status, event) pair the
// state machine does not allow.
var ErrIllegalTransition = errors.New("illegal transition")

// Status is where a car or pedestrian is in its movement cycle.
type Status uint8

const (
	Idle Status = iota
	Moving
	IntersectionQueue
	ParkingRequest
	Parked
	Arrived
	// AtStop is a bus dwelling at a stop of its route.
	AtStop
)

var statusNames = [...]string{"idle", "moving", "intersection_queue", "parking_request", "parked", "arrived", "at_stop"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range statusNames {
		if n == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// AllStatuses lists every Status.
func AllStatuses() []Status {
	return []Status{Idle, Moving, IntersectionQueue, ParkingRequest, Parked, Arrived, AtStop}
}

// Event is an input to the movement state machine.
type Event uint8

const (
	// Depart starts moving from Idle, or pulls a parked car out of its spot.
	Depart Event = iota
	// QueueAtTurn waits for the right of way at an intersection.
	QueueAtTurn
	// Grant lets the agent into the intersection.
	Grant
	// BeginParking starts the parking maneuver at the spot's access point.
	BeginParking
	// ParkingFailed aborts the maneuver; the agent drives on to another spot.
	ParkingFailed
	// Park completes the maneuver.
	Park
	// Arrive ends the movement at the destination.
	Arrive
	// Halt stops a bus at one of its stops.
	Halt
)

var eventNames = [...]string{"depart", "queue_at_turn", "grant", "begin_parking", "parking_failed", "park", "arrive", "halt"}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

// AllEvents lists every Event.
func AllEvents() []Event {
	return []Event{Depart, QueueAtTurn, Grant, BeginParking, ParkingFailed, Park, Arrive, Halt}
}

type transition struct {
	from Status
	on   Event
}

var transitions = map[transition]Status{
	{Idle, Depart}:                  Moving,
	{Parked, Depart}:                Moving,
	{AtStop, Depart}:                Moving,
	{Moving, QueueAtTurn}:           IntersectionQueue,
	{Moving, Grant}:                 Moving,
	{IntersectionQueue, Grant}:      Moving,
	{Moving, BeginParking}:          ParkingRequest,
	{ParkingRequest, ParkingFailed}: Moving,
	{ParkingRequest, Park}:          Parked,
	{Moving, Arrive}:                Arrived,
	{Moving, Halt}:                  AtStop,
}

// Next returns the status reached from s on event e.
func Next(s Status, e Event) (Status, error) {
	if to, ok := transitions[transition{s, e}]; ok {
		return to, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, e, s)
}
