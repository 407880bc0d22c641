package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fabianabarca/estimator/model"
)

// GTFS static files read by ParseGTFS. All are required.
var gtfsFiles = []string{
	"agency.txt",
	"routes.txt",
	"trips.txt",
	"stop_times.txt",
}

// Derives trip metadata, route stops and a schedule from a GTFS static
// feed. Each trip's scheduled departure is the departure from its
// first stop.
//
// Route stops are listed per trip, in stop_sequence order. Trips
// sharing route and shape repeat the same stops, which is fine as
// stop sequences are deduplicated when resolved.
func ParseGTFS(buf []byte) (*Tables, error) {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping gtfs: %w", err)
	}

	file := map[string]*zip.File{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		if _, dup := file[name]; dup {
			return nil, fmt.Errorf("multiple %s in gtfs", name)
		}
		file[name] = f
	}
	for _, name := range gtfsFiles {
		if file[name] == nil {
			return nil, fmt.Errorf("missing %s", name)
		}
	}

	var agency map[string]bool
	var tz string
	err = readZipFile(file["agency.txt"], func(data io.Reader) error {
		agency, tz, err = ParseAgency(data)
		return err
	})
	if err != nil {
		return nil, err
	}

	var routes map[string]bool
	err = readZipFile(file["routes.txt"], func(data io.Reader) error {
		routes, err = ParseRoutes(data, agency)
		return err
	})
	if err != nil {
		return nil, err
	}

	var trips []model.TripMetadata
	err = readZipFile(file["trips.txt"], func(data io.Reader) error {
		trips, err = ParseTrips(data)
		return err
	})
	if err != nil {
		return nil, err
	}

	known := map[string]bool{}
	for _, trip := range trips {
		if !routes[trip.RouteID] {
			return nil, fmt.Errorf("trip '%s' has unknown route_id '%s'", trip.TripID, trip.RouteID)
		}
		known[trip.TripID] = true
	}

	var stops map[string][]scheduledStop
	err = readZipFile(file["stop_times.txt"], func(data io.Reader) error {
		stops, err = parseScheduledStopTimes(data, known)
		return err
	})
	if err != nil {
		return nil, err
	}

	t := &Tables{
		RouteStops:     []model.RouteStop{},
		ScheduledTrips: []model.ScheduledTrip{},
		Trips:          trips,
		Timezone:       tz,
		Found: map[string]bool{
			RouteStopsFile:     true,
			ScheduledTripsFile: true,
			TripsFile:          true,
		},
	}

	for _, trip := range trips {
		seq := stops[trip.TripID]
		if len(seq) == 0 {
			continue
		}

		for _, st := range seq {
			t.RouteStops = append(t.RouteStops, model.RouteStop{
				RouteID: trip.RouteID,
				ShapeID: trip.ShapeID,
				StopID:  st.stopID,
			})
		}

		if !seq[0].timed {
			return nil, fmt.Errorf("trip '%s' has no time at its first stop", trip.TripID)
		}
		t.ScheduledTrips = append(t.ScheduledTrips, model.ScheduledTrip{
			TripID:        trip.TripID,
			DepartureTime: model.FormatClock(seq[0].departure),
		})
	}

	return t, nil
}

func readZipFile(f *zip.File, parse func(io.Reader) error) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	if err := parse(rc); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(f.Name), err)
	}
	return nil
}

// Fills tables missing from t with those from other.
func (t *Tables) Merge(other *Tables) {
	if t.Found == nil {
		t.Found = map[string]bool{}
	}
	if !t.Found[ObservationsFile] && other.Found[ObservationsFile] {
		t.Observations = other.Observations
		t.Found[ObservationsFile] = true
	}
	if !t.Found[RouteStopsFile] && other.Found[RouteStopsFile] {
		t.RouteStops = other.RouteStops
		t.Found[RouteStopsFile] = true
	}
	if !t.Found[ScheduledTripsFile] && other.Found[ScheduledTripsFile] {
		t.ScheduledTrips = other.ScheduledTrips
		t.Found[ScheduledTripsFile] = true
	}
	if !t.Found[TripsFile] && other.Found[TripsFile] {
		t.Trips = other.Trips
		t.Found[TripsFile] = true
	}
	if t.Timezone == "" {
		t.Timezone = other.Timezone
	}
}
