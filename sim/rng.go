package sim

import (
	"fmt"
	"hash/fnv"

	"golang.org/x/exp/rand"

	"github.com/traffic-sim/traffic-sim/sim/agent"
)

// Stream names an independent random sequence of a run.
type Stream string

const (
	// StreamWorkload picks modes and endpoints of generated trips. It is
	// seeded with the run seed itself, so --seed alone reproduces a demand.
	StreamWorkload Stream = "workload"
	// StreamDeparture draws the gaps between generated departures.
	StreamDeparture Stream = "departure"
)

// PersonStream is the stream that plans the itinerary of one person. Adding
// persons never shifts the draws of existing ones.
func PersonStream(id agent.PersonID) Stream {
	return Stream(fmt.Sprintf("person_%d", id))
}

// PartitionedRNG hands out one seeded generator per stream. A stream's seed
// is the run seed mixed with the FNV-1a hash of its name; the workload stream
// uses the run seed unchanged.
//
// Only demand generation draws from it. Event handling is free of randomness,
// so a scenario file and a map fully determine the event log.
//
// Thread-safety: NOT thread-safe.
type PartitionedRNG struct {
	seed    int64
	streams map[Stream]*rand.Rand
}

// NewPartitionedRNG creates the streams of a run seeded with seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{seed: seed, streams: make(map[Stream]*rand.Rand)}
}

// Seed is the run seed.
func (p *PartitionedRNG) Seed() int64 { return p.seed }

// Stream returns the generator of s, creating it on first use. Repeated calls
// return the same generator.
func (p *PartitionedRNG) Stream(s Stream) *rand.Rand {
	if r, ok := p.streams[s]; ok {
		return r
	}
	r := rand.New(rand.NewSource(streamSeed(p.seed, s)))
	p.streams[s] = r
	return r
}

func streamSeed(seed int64, s Stream) uint64 {
	if s == StreamWorkload {
		return uint64(seed)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return uint64(seed) ^ h.Sum64()
}
