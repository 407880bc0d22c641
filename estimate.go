package estimator

import (
	"fmt"
	"math"
	"time"

	"github.com/fabianabarca/estimator/model"
)

const secondsPerDay = 24 * 60 * 60

// A trip to estimate arrivals for.
type TripQuery struct {
	RouteID   string
	ServiceID string
	ShapeID   string

	// HH:MM or HH:MM:SS
	StartTime string
}

// Estimated arrival at a single stop.
type Arrival struct {
	StopID string

	// HH:MM:SS, or model.Unmappable if the stop has no curve.
	Time string

	// Predicted delay in seconds. Zero when not Estimated.
	Delay     float64
	Estimated bool

	// Set when start time plus delay fell outside the day and was
	// wrapped around midnight.
	Wrapped bool
}

// Arrivals for each stop of a trip, in stop sequence order.
type TripEstimate struct {
	Sequence []string
	Arrivals []Arrival
}

// Arrival time by stop ID.
func (e *TripEstimate) Times() map[string]string {
	times := make(map[string]string, len(e.Arrivals))
	for _, a := range e.Arrivals {
		times[a.StopID] = a.Time
	}
	return times
}

// Number of stops lacking a curve.
func (e *TripEstimate) Unmappable() int {
	n := 0
	for _, a := range e.Arrivals {
		if !a.Estimated {
			n++
		}
	}
	return n
}

// Estimates arrival times at every stop of the query's route and
// shape. Stops without a curve get model.Unmappable rather than an
// error.
func Estimate(query TripQuery, curves Curves, routeStops []model.RouteStop) (*TripEstimate, error) {
	start, err := model.ParseClock(query.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parsing start time: %w", err)
	}

	sequence := StopSequence(query.RouteID, query.ShapeID, routeStops)
	return estimateSequence(query, start, sequence, curves), nil
}

func estimateSequence(query TripQuery, start time.Duration, sequence []string, curves Curves) *TripEstimate {
	x := start.Seconds()

	estimate := &TripEstimate{
		Sequence: sequence,
		Arrivals: make([]Arrival, 0, len(sequence)),
	}

	for _, stopID := range sequence {
		arrival := Arrival{StopID: stopID, Time: model.Unmappable}

		curve, found := curves[model.CurveKey{
			RouteID:   query.RouteID,
			ServiceID: query.ServiceID,
			ShapeID:   query.ShapeID,
			StopID:    stopID,
		}]
		if found {
			delay := curve.Evaluate(x)
			if !math.IsNaN(delay) && !math.IsInf(delay, 0) {
				arrival.Delay = delay
				arrival.Estimated = true
				arrival.Time, arrival.Wrapped = addDelay(x, delay)
			}
		}

		estimate.Arrivals = append(estimate.Arrivals, arrival)
	}

	return estimate
}

// Adds delay (rounded to the second) to a time of day, wrapping
// modulo 24 hours.
func addDelay(x float64, delay float64) (string, bool) {
	t := x + math.Round(delay)
	wrapped := t < 0 || t >= secondsPerDay

	t = math.Mod(t, secondsPerDay)
	if t < 0 {
		t += secondsPerDay
	}

	return model.FormatClock(time.Duration(t) * time.Second), wrapped
}
