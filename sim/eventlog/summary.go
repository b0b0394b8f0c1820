package eventlog

// Summary aggregates statistics from an event log.
type Summary struct {
	Records   int
	FirstTime int64
	LastTime  int64
	ByKind    map[Kind]int
	// Agents is the number of distinct agents mentioned.
	Agents int
	// Trips is the number of distinct trips mentioned.
	Trips int
}

// Summarize computes aggregate statistics from records.
// Safe for nil or empty input (returns zero-value fields).
func Summarize(records []Record) *Summary {
	s := &Summary{ByKind: make(map[Kind]int)}
	if len(records) == 0 {
		return s
	}
	s.Records = len(records)
	s.FirstTime = records[0].Time
	s.LastTime = records[len(records)-1].Time
	agents := make(map[string]struct{})
	trips := make(map[int64]struct{})
	for _, r := range records {
		s.ByKind[r.Kind]++
		if r.Agent != nil {
			agents[r.Agent.String()] = struct{}{}
		}
		if r.Trip != nil {
			trips[int64(*r.Trip)] = struct{}{}
		}
	}
	s.Agents = len(agents)
	s.Trips = len(trips)
	return s
}
