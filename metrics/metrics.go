package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counts what a fitting or generation run did. Registered on a
// private registry, and written out as a node_exporter textfile once
// the run is over.
type Collector struct {
	reg *prometheus.Registry

	Observations          prometheus.Counter
	GroupsSkipped         prometheus.Counter
	CurvesFitted          prometheus.Counter
	CurvesUnderDetermined prometheus.Counter

	TripsGenerated prometheus.Counter
	TripsSkipped   prometheus.Counter
	StopsEstimated prometheus.Counter
	StopsUnmapped  prometheus.Counter

	FitDuration prometheus.Histogram
	LastRun     prometheus.Gauge // unix seconds
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estimator_observations_total",
			Help: "Observations read from input.",
		}),
		GroupsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estimator_groups_skipped_total",
			Help: "Trip occurrences skipped for lacking a timepoint.",
		}),
		CurvesFitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estimator_curves_fitted_total",
			Help: "Delay curves fitted.",
		}),
		CurvesUnderDetermined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estimator_curves_under_determined_total",
			Help: "Delay curves fitted from fewer distinct departures than coefficients.",
		}),
		TripsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estimator_trips_generated_total",
			Help: "Scheduled trips with generated stop times.",
		}),
		TripsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estimator_trips_skipped_total",
			Help: "Scheduled trips left out of the output.",
		}),
		StopsEstimated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estimator_stops_estimated_total",
			Help: "Stop times with an estimated arrival.",
		}),
		StopsUnmapped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estimator_stops_unmappable_total",
			Help: "Stop times without a delay curve.",
		}),
		FitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "estimator_fit_duration_seconds",
			Help:    "Duration of curve fitting runs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "estimator_last_run_timestamp_seconds",
			Help: "Time the last run finished.",
		}),
	}

	reg.MustRegister(
		c.Observations,
		c.GroupsSkipped,
		c.CurvesFitted,
		c.CurvesUnderDetermined,
		c.TripsGenerated,
		c.TripsSkipped,
		c.StopsEstimated,
		c.StopsUnmapped,
		c.FitDuration,
		c.LastRun,
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) GroupSkipped() { c.GroupsSkipped.Inc() }

func (c *Collector) CurveFitted(underDetermined bool) {
	c.CurvesFitted.Inc()
	if underDetermined {
		c.CurvesUnderDetermined.Inc()
	}
}

func (c *Collector) TripGenerated(stops int, unmappable int) {
	c.TripsGenerated.Inc()
	c.StopsEstimated.Add(float64(stops - unmappable))
	c.StopsUnmapped.Add(float64(unmappable))
}

func (c *Collector) TripSkipped() { c.TripsSkipped.Inc() }

func (c *Collector) ObserveInput(observations int) {
	c.Observations.Add(float64(observations))
}

func (c *Collector) ObserveFit(d time.Duration) {
	c.FitDuration.Observe(d.Seconds())
}

// Writes all metrics to path in the text exposition format, for
// pickup by node_exporter's textfile collector.
func (c *Collector) WriteTextfile(path string, now time.Time) error {
	c.LastRun.Set(float64(now.Unix()))

	err := prometheus.WriteToTextfile(path, c.reg)
	if err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
