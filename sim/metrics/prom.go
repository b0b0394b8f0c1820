package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/traffic-sim/traffic-sim/sim/eventlog"
)

// Collectors exports simulation counters to Prometheus. It doubles as an
// event log sink, counting records by kind.
type Collectors struct {
	events       *prometheus.CounterVec
	trips        *prometheus.CounterVec
	agents       *prometheus.GaugeVec
	tripDuration prometheus.Histogram
}

// NewCollectors registers the simulation metrics on reg. If reg is nil, the
// default registerer is used. If the collectors are already registered, the
// existing ones are reused.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficsim_events_total",
			Help: "Total number of event log records",
		}, []string{"kind"}),
		trips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficsim_trips_total",
			Help: "Total number of trips by outcome",
		}, []string{"outcome"}),
		agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficsim_agents",
			Help: "Number of live agents",
		}, []string{"type"}),
		tripDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficsim_trip_duration_seconds",
			Help:    "Simulated door-to-door duration of finished trips",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
	}
	var err error
	if c.events, err = register(reg, c.events); err != nil {
		return nil, err
	}
	if c.trips, err = register(reg, c.trips); err != nil {
		return nil, err
	}
	if c.agents, err = register(reg, c.agents); err != nil {
		return nil, err
	}
	if c.tripDuration, err = register(reg, c.tripDuration); err != nil {
		return nil, err
	}
	return c, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Append counts a record. It implements eventlog.Sink.
func (c *Collectors) Append(_ context.Context, rec eventlog.Record) error {
	c.events.WithLabelValues(rec.Kind.String()).Inc()
	switch rec.Kind {
	case eventlog.TripFinished:
		c.trips.WithLabelValues("finished").Inc()
	case eventlog.TripCancelled:
		c.trips.WithLabelValues("cancelled").Inc()
	case eventlog.TripFailed:
		c.trips.WithLabelValues("failed").Inc()
	}
	return nil
}

// Close implements eventlog.Sink. Collectors stay registered.
func (c *Collectors) Close() error { return nil }

// SetAgents publishes the number of live cars and pedestrians.
func (c *Collectors) SetAgents(cars, pedestrians int) {
	c.agents.WithLabelValues("car").Set(float64(cars))
	c.agents.WithLabelValues("pedestrian").Set(float64(pedestrians))
}

// ObserveTrip records the duration of a finished trip in seconds.
func (c *Collectors) ObserveTrip(seconds float64) {
	c.tripDuration.Observe(seconds)
}
