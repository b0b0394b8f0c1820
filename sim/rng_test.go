package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func draw(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Float64()
	}
	return out
}

func TestPartitionedRNG_SameSeedSameStream(t *testing.T) {
	a := NewPartitionedRNG(42)
	b := NewPartitionedRNG(42)

	assert.Equal(t, draw(a.Stream(StreamDeparture), 5), draw(b.Stream(StreamDeparture), 5))
}

func TestPartitionedRNG_StreamsAreIndependent(t *testing.T) {
	// GIVEN two generators with the same seed
	a := NewPartitionedRNG(7)
	b := NewPartitionedRNG(7)

	// WHEN only one of them consumes workload draws
	draw(a.Stream(StreamWorkload), 10)

	// THEN person streams are unaffected
	assert.Equal(t, draw(a.Stream(PersonStream(3)), 3), draw(b.Stream(PersonStream(3)), 3))
	assert.NotEqual(t, draw(b.Stream(PersonStream(4)), 3), draw(a.Stream(PersonStream(3)), 3))
}

func TestPartitionedRNG_WorkloadUsesRunSeed(t *testing.T) {
	for _, seed := range []int64{0, 42, -1, math.MinInt64, math.MaxInt64} {
		p := NewPartitionedRNG(seed)
		direct := rand.New(rand.NewSource(uint64(seed)))
		assert.Equal(t, draw(direct, 4), draw(p.Stream(StreamWorkload), 4), "seed %d", seed)
	}
}

func TestPartitionedRNG_ReusesGenerator(t *testing.T) {
	p := NewPartitionedRNG(42)
	require.Empty(t, p.streams)

	first := p.Stream(StreamWorkload)

	assert.Same(t, first, p.Stream(StreamWorkload))
	assert.Len(t, p.streams, 1)
	assert.Equal(t, int64(42), p.Seed())
	assert.NotNil(t, p.Stream(""))
}

func TestStreamSeed_DistinctPerName(t *testing.T) {
	seen := make(map[uint64]Stream)
	for _, s := range []Stream{StreamWorkload, StreamDeparture, PersonStream(0), PersonStream(1), ""} {
		v := streamSeed(42, s)
		_, dup := seen[v]
		assert.False(t, dup, "collision for %q", s)
		seen[v] = s
	}
	assert.Equal(t, streamSeed(1, "x"), streamSeed(1, "x"))
	assert.Equal(t, Stream("person_12"), PersonStream(12))
}
