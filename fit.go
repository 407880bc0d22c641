package estimator

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fabianabarca/estimator/model"
)

// Receives counts from fitting and generation runs. Implemented by
// metrics.Collector.
type Metrics interface {
	GroupSkipped()
	CurveFitted(underDetermined bool)
	TripGenerated(stops int, unmappable int)
	TripSkipped()
}

// Delay curves by (route, service, shape, stop).
type Curves map[model.CurveKey]*DelayCurve

// Sorted list of keys, for stable iteration.
func (c Curves) Keys() []model.CurveKey {
	keys := make([]model.CurveKey, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Fits delay curves from historical observations.
type Fitter struct {
	Degree int

	// If set, a trip occurrence without timepoint aborts the
	// fit. Otherwise the occurrence is skipped with a warning.
	Strict bool

	Logger  *slog.Logger
	Metrics Metrics
}

func NewFitter() *Fitter {
	return &Fitter{Degree: DefaultDegree}
}

// Fits curves with the default Fitter.
func FitCurves(observations []model.Observation) (Curves, error) {
	return NewFitter().Fit(observations)
}

type occurrence struct {
	tripID string
	date   string
}

type samples struct {
	xs []float64
	ys []float64
}

// Fits one curve per (route, service, shape, stop) found in the
// observations.
//
// The independent variable is the trip's departure time: the arrival
// at the first recorded stop of the trip's earliest occurrence. This
// is not necessarily the timepoint delays are measured from.
func (f *Fitter) Fit(observations []model.Observation) (Curves, error) {
	start := time.Now()

	delays, err := f.delays(observations)
	if err != nil {
		return nil, err
	}

	departures := map[string]time.Duration{}
	for _, d := range delays {
		if _, found := departures[d.TripID]; !found {
			departures[d.TripID] = d.Arrival
		}
	}

	keys := []model.CurveKey{}
	byKey := map[model.CurveKey]*samples{}
	for _, d := range delays {
		key := d.CurveKey()
		s, found := byKey[key]
		if !found {
			s = &samples{}
			byKey[key] = s
			keys = append(keys, key)
		}
		s.xs = append(s.xs, departures[d.TripID].Seconds())
		s.ys = append(s.ys, d.Delay)
	}

	curves := make(Curves, len(keys))
	underDetermined := 0
	for _, key := range keys {
		s := byKey[key]
		curve, err := FitPolynomial(s.xs, s.ys, f.degree())
		if err != nil {
			return nil, fmt.Errorf("fitting %s: %w", key, err)
		}

		if curve.UnderDetermined() {
			underDetermined++
			f.logger().Warn(
				"under-determined delay curve",
				slog.String("curve", key.String()),
				slog.Int("samples", curve.Samples),
				slog.Int("rank", curve.Rank),
			)
		}
		if f.Metrics != nil {
			f.Metrics.CurveFitted(curve.UnderDetermined())
		}

		curves[key] = curve
	}

	f.logger().Info(
		"fitted delay curves",
		slog.Int("observations", len(observations)),
		slog.Int("curves", len(curves)),
		slog.Int("under_determined", underDetermined),
		slog.Duration("duration", time.Since(start)),
	)

	return curves, nil
}

// Computes delays for each trip occurrence. Occurrences are visited
// ordered by trip and date, so the first delay seen for a trip belongs
// to its earliest occurrence.
func (f *Fitter) delays(observations []model.Observation) ([]model.Delay, error) {
	order := []occurrence{}
	groups := map[occurrence][]model.Observation{}
	for _, o := range observations {
		occ := occurrence{o.TripID, o.Date}
		if _, found := groups[occ]; !found {
			order = append(order, occ)
		}
		groups[occ] = append(groups[occ], o)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].tripID != order[j].tripID {
			return order[i].tripID < order[j].tripID
		}
		return order[i].date < order[j].date
	})

	delays := make([]model.Delay, 0, len(observations))
	for _, occ := range order {
		d, err := ComputeDelays(groups[occ])
		if errors.Is(err, ErrReferenceNotFound) && !f.Strict {
			f.logger().Warn(
				"skipping trip occurrence without timepoint",
				slog.String("trip_id", occ.tripID),
				slog.String("date", occ.date),
				slog.Int("observations", len(groups[occ])),
			)
			if f.Metrics != nil {
				f.Metrics.GroupSkipped()
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		delays = append(delays, d...)
	}

	return delays, nil
}

func (f *Fitter) degree() int {
	if f.Degree <= 0 {
		return DefaultDegree
	}
	return f.Degree
}

func (f *Fitter) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}
