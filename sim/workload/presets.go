package workload

// Built-in demand presets. Each returns a valid Scenario for Apply.

// CommuteScenario is a car-heavy morning peak: bunched departures and most
// people driving back after a working day.
func CommuteScenario(persons int, perHour float64) *Scenario {
	cv := 2.0
	return &Scenario{
		Version: "1",
		Random: &RandomSpec{
			Persons:     persons,
			RatePerHour: perHour,
			Arrival:     ArrivalSpec{Process: "gamma", CV: &cv},
			Modes:       map[string]float64{"drive": 6, "transit": 2, "bike": 1, "walk": 1},
			RoundTrip:   0.8,
			DwellS:      8 * 3600,
		},
	}
}

// MixedScenario spreads departures evenly over the hour across all modes.
func MixedScenario(persons int, perHour float64) *Scenario {
	return &Scenario{
		Version: "1",
		Random: &RandomSpec{
			Persons:     persons,
			RatePerHour: perHour,
			Arrival:     ArrivalSpec{Process: "poisson"},
			Modes:       map[string]float64{"drive": 1, "transit": 1, "bike": 1, "walk": 1},
			RoundTrip:   0.3,
			DwellS:      600,
		},
	}
}

// Presets maps preset names to constructors.
var Presets = map[string]func(persons int, perHour float64) *Scenario{
	"commute": CommuteScenario,
	"mixed":   MixedScenario,
}
