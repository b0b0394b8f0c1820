// Package arena provides a dense, index-addressed store whose handles carry a
// generation counter. A slot reused after removal gets a new generation, so a
// handle to the old occupant no longer resolves.
package arena

import "fmt"

// Handle addresses one slot of an Arena at one generation.
// Handles are ordered by (Index, Gen).
type Handle struct {
	Index uint32 `json:"index"`
	Gen   uint32 `json:"gen"`
}

// Less reports whether h sorts before o.
func (h Handle) Less(o Handle) bool {
	if h.Index != o.Index {
		return h.Index < o.Index
	}
	return h.Gen < o.Gen
}

func (h Handle) String() string {
	return fmt.Sprintf("%d.%d", h.Index, h.Gen)
}

type slot[T any] struct {
	gen   uint32
	live  bool
	value T
}

// Arena stores values of type T in dense slots.
//
// Freed slots are reused lowest-index first, which keeps allocation order a pure
// function of the insert/remove sequence (no map iteration involved).
// Thread-safety: NOT thread-safe.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32 // kept sorted descending; the last element is the lowest free index
	live  int
}

// New creates an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.gen++
		s.live = true
		s.value = v
		return Handle{Index: idx, Gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{gen: 1, live: true, value: v})
	return Handle{Index: uint32(len(a.slots) - 1), Gen: 1}
}

// Get returns the value stored under h, or false if h is stale or unknown.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	if int(h.Index) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[h.Index]
	if !s.live || s.gen != h.Gen {
		return zero, false
	}
	return s.value, true
}

// Contains reports whether h resolves to a live value.
func (a *Arena[T]) Contains(h Handle) bool {
	_, ok := a.Get(h)
	return ok
}

// Set replaces the value under a live handle. It returns false for stale handles.
func (a *Arena[T]) Set(h Handle, v T) bool {
	if !a.Contains(h) {
		return false
	}
	a.slots[h.Index].value = v
	return true
}

// Remove frees the slot addressed by h. Removing a stale handle is a no-op and
// returns false.
func (a *Arena[T]) Remove(h Handle) bool {
	if !a.Contains(h) {
		return false
	}
	s := &a.slots[h.Index]
	var zero T
	s.value = zero
	s.live = false
	a.live--
	// insert keeping descending order
	i := len(a.free)
	a.free = append(a.free, h.Index)
	for i > 0 && a.free[i-1] < h.Index {
		a.free[i] = a.free[i-1]
		i--
	}
	a.free[i] = h.Index
	return true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	return a.live
}

// Each calls fn for every live value in index order. fn must not insert or
// remove values.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			fn(Handle{Index: uint32(i), Gen: s.gen}, s.value)
		}
	}
}

// Entry is the serialized form of one live slot.
type Entry[T any] struct {
	Handle Handle `json:"handle"`
	Value  T      `json:"value"`
}

// State is the serialized form of an arena, including free-slot generations so
// that restored arenas hand out the same handles as the original would have.
type State[T any] struct {
	Gens    []uint32   `json:"gens"`
	Entries []Entry[T] `json:"entries"`
}

// Export returns the arena state.
func (a *Arena[T]) Export() State[T] {
	st := State[T]{Gens: make([]uint32, len(a.slots))}
	for i := range a.slots {
		st.Gens[i] = a.slots[i].gen
	}
	a.Each(func(h Handle, v T) {
		st.Entries = append(st.Entries, Entry[T]{Handle: h, Value: v})
	})
	return st
}

// Import rebuilds an arena from an exported state.
func Import[T any](st State[T]) (*Arena[T], error) {
	a := &Arena[T]{slots: make([]slot[T], len(st.Gens))}
	for i, g := range st.Gens {
		a.slots[i].gen = g
	}
	for _, e := range st.Entries {
		if int(e.Handle.Index) >= len(a.slots) {
			return nil, fmt.Errorf("arena entry %s out of range (%d slots)", e.Handle, len(a.slots))
		}
		s := &a.slots[e.Handle.Index]
		if s.gen != e.Handle.Gen || s.live {
			return nil, fmt.Errorf("arena entry %s inconsistent with slot generation %d", e.Handle, s.gen)
		}
		s.live = true
		s.value = e.Value
		a.live++
	}
	for i := len(a.slots) - 1; i >= 0; i-- {
		if !a.slots[i].live {
			a.free = append(a.free, uint32(i))
		}
	}
	return a, nil
}
