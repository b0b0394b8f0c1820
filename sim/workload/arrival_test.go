package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

func sampleMean(s DepartureSampler, n int) (mean float64, minGap int64) {
	rng := rand.New(rand.NewSource(42))
	var sum int64
	minGap = s.SampleGap(rng)
	sum += minGap
	for i := 1; i < n; i++ {
		g := s.SampleGap(rng)
		sum += g
		minGap = min(minGap, g)
	}
	return float64(sum) / float64(n), minGap
}

func TestDepartureSampler_MeanMatchesRate(t *testing.T) {
	cv := 2.0
	low := 0.5
	tests := []struct {
		name string
		spec ArrivalSpec
	}{
		{"poisson", ArrivalSpec{Process: "poisson"}},
		{"default is poisson", ArrivalSpec{}},
		{"bursty gamma", ArrivalSpec{Process: "gamma", CV: &cv}},
		{"regular gamma", ArrivalSpec{Process: "gamma", CV: &low}},
		{"constant", ArrivalSpec{Process: "constant"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN one departure per second on average
			s := NewDepartureSampler(tc.spec, 3600)

			// WHEN many gaps are drawn
			mean, minGap := sampleMean(s, 20000)

			// THEN they average one second and are never zero
			assert.InEpsilon(t, 1e6, mean, 0.05)
			assert.GreaterOrEqual(t, minGap, int64(1))
		})
	}
}

func TestDepartureSampler_ConstantIsExact(t *testing.T) {
	s := NewDepartureSampler(ArrivalSpec{Process: "constant"}, 7200)
	assert.Equal(t, int64(500_000), s.SampleGap(nil))
}

func TestDepartureSampler_TinyGammaShapeFallsBackToPoisson(t *testing.T) {
	cv := 20.0
	_, ok := NewDepartureSampler(ArrivalSpec{Process: "gamma", CV: &cv}, 60).(*PoissonSampler)
	assert.True(t, ok)
}

func TestDepartureSampler_SameSeedSameGaps(t *testing.T) {
	cv := 1.5
	s := NewDepartureSampler(ArrivalSpec{Process: "gamma", CV: &cv}, 600)
	a, b := rand.New(rand.NewSource(7)), rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		assert.Equal(t, s.SampleGap(a), s.SampleGap(b))
	}
}
