package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/fabianabarca/estimator/model"
)

type RouteStopCSV struct {
	RouteID string `csv:"route_id"`
	ShapeID string `csv:"shape_id"`
	StopID  string `csv:"stop_id"`
}

// Parses the stops served by each route and shape. Stop order is the
// row order.
func ParseRouteStops(data io.Reader) ([]model.RouteStop, error) {
	routeStopCsv := []*RouteStopCSV{}
	if err := gocsv.Unmarshal(data, &routeStopCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling route_stops csv: %w", err)
	}

	routeStops := make([]model.RouteStop, 0, len(routeStopCsv))
	for i, rs := range routeStopCsv {
		if rs.RouteID == "" {
			return nil, fmt.Errorf("empty route_id (row %d)", i+1)
		}
		if rs.StopID == "" {
			return nil, fmt.Errorf("empty stop_id (row %d)", i+1)
		}

		routeStops = append(routeStops, model.RouteStop{
			RouteID: rs.RouteID,
			ShapeID: rs.ShapeID,
			StopID:  rs.StopID,
		})
	}

	return routeStops, nil
}
