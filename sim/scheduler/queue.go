// Package scheduler is the single global event queue driving a simulation.
package scheduler

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
)

// ErrNonMonotonicTime is returned when an event is scheduled before the time
// of the last event popped.
var ErrNonMonotonicTime = errors.New("non-monotonic event time")

// Queue is a priority queue with deterministic ordering.
// Ordering: timestamp → actor → kind rank → sequence number.
// Thread-safety: NOT thread-safe.
type Queue struct {
	events []Event
	seq    uint64
	now    int64
}

// NewQueue creates an empty queue at time zero.
func NewQueue() *Queue {
	q := &Queue{events: make([]Event, 0)}
	heap.Init(q)
	return q
}

// Len implements heap.Interface.
func (q *Queue) Len() int { return len(q.events) }

// Less implements heap.Interface.
func (q *Queue) Less(i, j int) bool { return q.events[i].Less(q.events[j]) }

// Swap implements heap.Interface.
func (q *Queue) Swap(i, j int) { q.events[i], q.events[j] = q.events[j], q.events[i] }

// Push implements heap.Interface. Use Schedule instead.
func (q *Queue) Push(x any) { q.events = append(q.events, x.(Event)) }

// Pop implements heap.Interface. Use Next instead.
func (q *Queue) Pop() any {
	old := q.events
	n := len(old)
	item := old[n-1]
	q.events = old[:n-1]
	return item
}

// Now is the time of the last event taken off the queue.
func (q *Queue) Now() int64 { return q.now }

// Schedule assigns the next sequence number to e and queues it.
func (q *Queue) Schedule(e Event) (Event, error) {
	if e.Time < q.now {
		return e, fmt.Errorf("%w: %s scheduled before now=%d", ErrNonMonotonicTime, e, q.now)
	}
	e.Seq = q.seq
	q.seq++
	heap.Push(q, e)
	return e, nil
}

// Next removes and returns the earliest event and advances the clock to it.
func (q *Queue) Next() (Event, bool) {
	if q.Len() == 0 {
		return Event{}, false
	}
	e := heap.Pop(q).(Event)
	q.now = e.Time
	return e, true
}

// Peek returns the earliest event without removing it.
func (q *Queue) Peek() (Event, bool) {
	if q.Len() == 0 {
		return Event{}, false
	}
	return q.events[0], true
}

// CancelActor removes every pending event of an actor and reports how many
// were removed.
func (q *Queue) CancelActor(a Actor) int {
	before := len(q.events)
	q.events = slices.DeleteFunc(q.events, func(e Event) bool { return e.Actor == a })
	removed := before - len(q.events)
	if removed > 0 {
		heap.Init(q)
	}
	return removed
}

// Pending returns the queued events of an actor in execution order.
func (q *Queue) Pending(a Actor) []Event {
	var out []Event
	for _, e := range q.events {
		if e.Actor == a {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, compare)
	return out
}

func compare(a, b Event) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

// State is the serialized queue. Events are listed in execution order.
type State struct {
	Now     int64   `json:"now"`
	NextSeq uint64  `json:"next_seq"`
	Events  []Event `json:"events"`
}

// Snapshot captures the queue, keeping sequence numbers.
func (q *Queue) Snapshot() State {
	events := slices.Clone(q.events)
	slices.SortFunc(events, compare)
	if events == nil {
		events = []Event{}
	}
	return State{Now: q.now, NextSeq: q.seq, Events: events}
}

// Restore rebuilds a queue from a snapshot.
func Restore(s State) (*Queue, error) {
	q := &Queue{events: slices.Clone(s.Events), seq: s.NextSeq, now: s.Now}
	if q.events == nil {
		q.events = make([]Event, 0)
	}
	for _, e := range q.events {
		if e.Time < s.Now {
			return nil, fmt.Errorf("restoring queue: %w: %s before now=%d", ErrNonMonotonicTime, e, s.Now)
		}
		if e.Seq >= s.NextSeq {
			return nil, fmt.Errorf("restoring queue: %s has seq >= next seq %d", e, s.NextSeq)
		}
	}
	heap.Init(q)
	return q, nil
}
