package estimator

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fabianabarca/estimator/model"
)

var (
	ErrMissingMetadata = errors.New("trip not found in trip metadata")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotImplemented  = errors.New("not implemented")
)

// Maps "A" or "B" (case insensitive) to an estimation method.
func ParseMethod(s string) (model.Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return model.MethodA, nil
	case "B":
		return model.MethodB, nil
	}
	return 0, fmt.Errorf("unknown method '%s', use 'A' or 'B': %w", s, ErrInvalidArgument)
}

// Tables consumed by a generation run.
type Input struct {
	Observations   []model.Observation
	RouteStops     []model.RouteStop
	ScheduledTrips []model.ScheduledTrip
	Trips          []model.TripMetadata

	// Previously fitted curves. If nil, curves are fitted from
	// Observations.
	Curves Curves
}

// A scheduled trip left out of the output.
type SkippedTrip struct {
	TripID string
	Err    error
}

type Result struct {
	// Rows in scheduled trip order, then stop sequence.
	StopTimes []model.StopTime

	// Curves the stop times were estimated from.
	Curves Curves

	Skipped []SkippedTrip
}

// Generates stop_times for a batch of scheduled trips.
type Generator struct {
	Method  model.Method
	Fitter  *Fitter
	Logger  *slog.Logger
	Metrics Metrics
}

func NewGenerator() *Generator {
	return &Generator{
		Method: model.MethodB,
		Fitter: NewFitter(),
	}
}

// Generates stop times with the default Generator.
func GenerateStopTimes(in *Input) (*Result, error) {
	return NewGenerator().Generate(in)
}

func (g *Generator) Generate(in *Input) (*Result, error) {
	switch g.Method {
	case model.MethodA:
		return nil, fmt.Errorf("geometry based estimation (method A): %w", ErrNotImplemented)
	case model.MethodB:
		return g.generateFromCurves(in)
	}
	return nil, fmt.Errorf("method %s: %w", g.Method, ErrInvalidArgument)
}

func (g *Generator) generateFromCurves(in *Input) (*Result, error) {
	curves := in.Curves
	if curves == nil {
		fitter := g.Fitter
		if fitter == nil {
			fitter = NewFitter()
		}

		var err error
		curves, err = fitter.Fit(in.Observations)
		if err != nil {
			return nil, fmt.Errorf("fitting curves: %w", err)
		}
	}

	metadata := make(map[string]model.TripMetadata, len(in.Trips))
	for _, t := range in.Trips {
		if _, found := metadata[t.TripID]; !found {
			metadata[t.TripID] = t
		}
	}

	sequences := NewSequenceIndex(in.RouteStops)

	result := &Result{
		StopTimes: []model.StopTime{},
		Curves:    curves,
		Skipped:   []SkippedTrip{},
	}

	for _, scheduled := range in.ScheduledTrips {
		stopTimes, err := g.generateTrip(scheduled, metadata, sequences, curves)
		if err != nil {
			g.logger().Warn(
				"skipping trip",
				slog.String("trip_id", scheduled.TripID),
				slog.String("error", err.Error()),
			)
			if g.Metrics != nil {
				g.Metrics.TripSkipped()
			}
			result.Skipped = append(result.Skipped, SkippedTrip{
				TripID: scheduled.TripID,
				Err:    err,
			})
			continue
		}

		result.StopTimes = append(result.StopTimes, stopTimes...)
	}

	g.logger().Info(
		"generated stop times",
		slog.Int("trips", len(in.ScheduledTrips)-len(result.Skipped)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("stop_times", len(result.StopTimes)),
	)

	return result, nil
}

func (g *Generator) generateTrip(
	scheduled model.ScheduledTrip,
	metadata map[string]model.TripMetadata,
	sequences *SequenceIndex,
	curves Curves,
) ([]model.StopTime, error) {
	meta, found := metadata[scheduled.TripID]
	if !found {
		return nil, fmt.Errorf("trip '%s': %w", scheduled.TripID, ErrMissingMetadata)
	}

	start, err := model.ParseClock(scheduled.DepartureTime)
	if err != nil {
		return nil, fmt.Errorf("parsing departure time: %w", err)
	}

	query := TripQuery{
		RouteID:   meta.RouteID,
		ServiceID: meta.ServiceID,
		ShapeID:   meta.ShapeID,
		StartTime: scheduled.DepartureTime,
	}
	estimate := estimateSequence(query, start, sequences.Sequence(meta.RouteID, meta.ShapeID), curves)

	if len(estimate.Sequence) == 0 {
		g.logger().Warn(
			"no stops for trip",
			slog.String("trip_id", scheduled.TripID),
			slog.String("route_id", meta.RouteID),
			slog.String("shape_id", meta.ShapeID),
		)
	}

	stopTimes := make([]model.StopTime, 0, len(estimate.Arrivals))
	for i, arrival := range estimate.Arrivals {
		if arrival.Wrapped {
			g.logger().Warn(
				"estimated arrival wraps past midnight",
				slog.String("trip_id", scheduled.TripID),
				slog.String("stop_id", arrival.StopID),
				slog.String("arrival_time", arrival.Time),
			)
		}

		timepoint := int8(0)
		if i == 0 {
			timepoint = 1
		}

		stopTimes = append(stopTimes, model.StopTime{
			TripID:        scheduled.TripID,
			ArrivalTime:   arrival.Time,
			DepartureTime: arrival.Time,
			StopID:        arrival.StopID,
			StopSequence:  uint32(i),
			Timepoint:     timepoint,
		})
	}

	if g.Metrics != nil {
		g.Metrics.TripGenerated(len(estimate.Arrivals), estimate.Unmappable())
	}

	return stopTimes, nil
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}
