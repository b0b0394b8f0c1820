package workload

import (
	"math"

	"golang.org/x/exp/rand"
)

// DepartureSampler generates the gaps between consecutive generated
// departures.
type DepartureSampler interface {
	// SampleGap returns the next gap in ticks. Always >= 1.
	SampleGap(rng *rand.Rand) int64
}

// PoissonSampler draws exponential gaps: departures form a Poisson process.
type PoissonSampler struct {
	ratePerTick float64
}

func (s *PoissonSampler) SampleGap(rng *rand.Rand) int64 {
	return max(1, int64(rng.ExpFloat64()/s.ratePerTick))
}

// GammaSampler draws Gamma gaps. A coefficient of variation above 1 gives
// rush-hour style bunching, below 1 evenly spread departures.
type GammaSampler struct {
	shape float64 // 1/CV²
	scale float64 // mean gap * CV², in ticks
}

func (s *GammaSampler) SampleGap(rng *rand.Rand) int64 {
	return max(1, int64(gammaRand(rng, s.shape, s.scale)))
}

// gammaRand samples Gamma(shape, scale) with Marsaglia-Tsang, boosting
// shapes below 1 through Gamma(a) = Gamma(a+1) * U^(1/a).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaRand(rng, shape+1, scale) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*(x*x)*(x*x) || math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// ConstantSampler spaces departures evenly.
type ConstantSampler struct {
	gap int64
}

func (s *ConstantSampler) SampleGap(*rand.Rand) int64 { return s.gap }

// NewDepartureSampler creates a sampler for an arrival process at the given mean rate
// in departures per hour.
func NewDepartureSampler(spec ArrivalSpec, perHour float64) DepartureSampler {
	perTick := max(perHour/3600/1e6, 1e-15)
	switch spec.Process {
	case "gamma":
		cv := 1.0
		if spec.CV != nil && *spec.CV > 0 {
			cv = *spec.CV
		}
		shape := 1 / (cv * cv)
		if shape < 0.01 {
			log.Warnf("gamma shape %.4f (cv=%.1f) too small, using poisson departures", shape, cv)
			return &PoissonSampler{ratePerTick: perTick}
		}
		return &GammaSampler{shape: shape, scale: cv * cv / perTick}
	case "constant":
		return &ConstantSampler{gap: max(1, int64(math.Round(1/perTick)))}
	default:
		return &PoissonSampler{ratePerTick: perTick}
	}
}
