package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/fabianabarca/estimator/model"
)

type ObservationCSV struct {
	TripID      string `csv:"trip_id"`
	Date        string `csv:"date"`
	StopID      string `csv:"stop_id"`
	RouteID     string `csv:"route_id"`
	ServiceID   string `csv:"service_id"`
	ShapeID     string `csv:"shape_id"`
	ArrivalTime string `csv:"arrival_time"`
	Timepoint   int8   `csv:"timepoint"`
}

// Parses recorded arrivals. Row order is preserved, as the first
// timepoint of each trip occurrence is determined by it.
func ParseObservations(data io.Reader) ([]model.Observation, error) {
	observations := []model.Observation{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(o *ObservationCSV) error {
		i += 1
		if o.TripID == "" {
			return fmt.Errorf("missing trip_id (row %d)", i+1)
		}
		if o.StopID == "" {
			return fmt.Errorf("missing stop_id (row %d)", i+1)
		}
		if o.RouteID == "" {
			return fmt.Errorf("missing route_id (row %d)", i+1)
		}
		if o.Timepoint != 0 && o.Timepoint != 1 {
			return fmt.Errorf("invalid timepoint %d (row %d)", o.Timepoint, i+1)
		}

		arrival, err := model.ParseClock(o.ArrivalTime)
		if err != nil {
			return errors.Wrapf(err, "parsing arrival_time (row %d)", i+1)
		}

		observations = append(observations, model.Observation{
			TripID:    o.TripID,
			Date:      o.Date,
			StopID:    o.StopID,
			RouteID:   o.RouteID,
			ServiceID: o.ServiceID,
			ShapeID:   o.ShapeID,
			Arrival:   arrival,
			Timepoint: o.Timepoint == 1,
		})

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling observations csv")
	}

	return observations, nil
}

// Writes observations as CSV, header included. Arrivals past midnight
// are written with hours above 23, as in GTFS.
func WriteObservations(w io.Writer, observations []model.Observation) error {
	rows := make([]*ObservationCSV, 0, len(observations))
	for _, o := range observations {
		timepoint := int8(0)
		if o.Timepoint {
			timepoint = 1
		}
		rows = append(rows, &ObservationCSV{
			TripID:      o.TripID,
			Date:        o.Date,
			StopID:      o.StopID,
			RouteID:     o.RouteID,
			ServiceID:   o.ServiceID,
			ShapeID:     o.ShapeID,
			ArrivalTime: formatArrival(o.Arrival),
			Timepoint:   timepoint,
		})
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return errors.Wrap(err, "marshaling observations csv")
	}

	return nil
}

func formatArrival(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf(
		"%02d:%02d:%02d",
		int(d/time.Hour),
		int(d/time.Minute)%60,
		int(d/time.Second)%60,
	)
}

// Appends recorded to existing, replacing rows for the same trip, date
// and stop. Rows added to a trip occurrence already present in
// existing keep that occurrence's timepoint.
func MergeObservations(existing, recorded []model.Observation) []model.Observation {
	type occurrence struct{ trip, date string }
	type stop struct {
		occurrence
		id string
	}

	merged := make([]model.Observation, len(existing), len(existing)+len(recorded))
	copy(merged, existing)

	index := map[stop]int{}
	known := map[occurrence]bool{}
	for i, o := range merged {
		occ := occurrence{o.TripID, o.Date}
		index[stop{occ, o.StopID}] = i
		known[occ] = true
	}

	for _, o := range recorded {
		occ := occurrence{o.TripID, o.Date}
		if i, found := index[stop{occ, o.StopID}]; found {
			o.Timepoint = merged[i].Timepoint
			merged[i] = o
			continue
		}
		if known[occ] {
			o.Timepoint = false
		}
		merged = append(merged, o)
	}

	return merged
}
