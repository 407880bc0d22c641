package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/fabianabarca/estimator/model"
)

type TripCSV struct {
	ID        string `csv:"trip_id"`
	RouteID   string `csv:"route_id"`
	ServiceID string `csv:"service_id"`
	ShapeID   string `csv:"shape_id"`
	// Headsign    string `csv:"trip_headsign"`
	// DirectionID int8   `csv:"direction_id"`
}

// Parses trip metadata, i.e. the route, service and shape of each
// trip.
func ParseTrips(data io.Reader) ([]model.TripMetadata, error) {
	tripCsv := []*TripCSV{}
	if err := gocsv.Unmarshal(data, &tripCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling trips csv: %w", err)
	}

	seen := map[string]bool{}
	trips := make([]model.TripMetadata, 0, len(tripCsv))
	for _, t := range tripCsv {
		if t.ID == "" {
			return nil, fmt.Errorf("empty trip_id")
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("repeated trip_id '%s'", t.ID)
		}
		seen[t.ID] = true

		if t.RouteID == "" {
			return nil, fmt.Errorf("empty route_id for trip '%s'", t.ID)
		}

		trips = append(trips, model.TripMetadata{
			TripID:    t.ID,
			RouteID:   t.RouteID,
			ServiceID: t.ServiceID,
			ShapeID:   t.ShapeID,
		})
	}

	return trips, nil
}
