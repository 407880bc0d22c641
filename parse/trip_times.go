package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/fabianabarca/estimator/model"
)

type ScheduledTripCSV struct {
	TripID        string `csv:"trip_id"`
	DepartureTime string `csv:"trip_departure_time"`
	// Older exports name the departure column trip_time.
	TripTime string `csv:"trip_time"`
}

// Parses the trips to generate stop times for. A trip may appear more
// than once.
func ParseScheduledTrips(data io.Reader) ([]model.ScheduledTrip, error) {
	tripCsv := []*ScheduledTripCSV{}
	if err := gocsv.Unmarshal(data, &tripCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling trip_times csv: %w", err)
	}

	trips := make([]model.ScheduledTrip, 0, len(tripCsv))
	for i, t := range tripCsv {
		if t.TripID == "" {
			return nil, fmt.Errorf("empty trip_id (row %d)", i+1)
		}

		departure := t.DepartureTime
		if departure == "" {
			departure = t.TripTime
		}
		if _, err := model.ParseClock(departure); err != nil {
			return nil, errors.Wrapf(err, "parsing trip_departure_time (row %d)", i+1)
		}

		trips = append(trips, model.ScheduledTrip{
			TripID:        t.TripID,
			DepartureTime: departure,
		})
	}

	return trips, nil
}
