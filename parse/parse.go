package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/fabianabarca/estimator/model"
)

// Base names (sans .txt/.csv) of the tables making up an estimator
// input.
const (
	ObservationsFile   = "stop_times_measurement"
	RouteStopsFile     = "route_stops"
	ScheduledTripsFile = "trip_times"
	TripsFile          = "trips"
)

func init() {
	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

// All tables read from an input archive or directory. Tables missing
// from the input are left nil, and not listed in Found.
type Tables struct {
	Observations   []model.Observation
	RouteStops     []model.RouteStop
	ScheduledTrips []model.ScheduledTrip
	Trips          []model.TripMetadata

	// IANA timezone of the agency, when read from a GTFS feed.
	Timezone string

	Found map[string]bool
}

// Parses a zip archive holding the input tables. Files can be named
// either .txt or .csv, and may live in a subdirectory.
func ParseArchive(buf []byte) (*Tables, error) {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	file := map[string]io.ReadCloser{}
	defer func() {
		for _, rc := range file {
			rc.Close()
		}
	}()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := tableName(f.Name)
		if !ok {
			continue
		}
		if _, dup := file[name]; dup {
			return nil, fmt.Errorf("multiple files for table %s", name)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		file[name] = rc
	}

	readers := map[string]io.Reader{}
	for name, rc := range file {
		readers[name] = rc
	}

	return parseTables(readers)
}

// Parses input tables from files in a directory.
func ParseDirectory(dir string) (*Tables, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	file := map[string]*os.File{}
	defer func() {
		for _, f := range file {
			f.Close()
		}
	}()

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := tableName(e.Name())
		if !ok {
			continue
		}
		if _, dup := file[name]; dup {
			return nil, fmt.Errorf("multiple files for table %s", name)
		}

		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", e.Name(), err)
		}
		file[name] = f
	}

	readers := map[string]io.Reader{}
	for name, f := range file {
		readers[name] = f
	}

	return parseTables(readers)
}

func tableName(path string) (string, bool) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != ".txt" && ext != ".csv" {
		return "", false
	}

	name := strings.TrimSuffix(base, ext)
	switch name {
	case ObservationsFile, RouteStopsFile, ScheduledTripsFile, TripsFile:
		return name, true
	}
	return "", false
}

func parseTables(file map[string]io.Reader) (*Tables, error) {
	t := &Tables{Found: map[string]bool{}}

	var err error
	if r := file[ObservationsFile]; r != nil {
		t.Observations, err = ParseObservations(r)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", ObservationsFile, err)
		}
		t.Found[ObservationsFile] = true
	}

	if r := file[RouteStopsFile]; r != nil {
		t.RouteStops, err = ParseRouteStops(r)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", RouteStopsFile, err)
		}
		t.Found[RouteStopsFile] = true
	}

	if r := file[ScheduledTripsFile]; r != nil {
		t.ScheduledTrips, err = ParseScheduledTrips(r)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", ScheduledTripsFile, err)
		}
		t.Found[ScheduledTripsFile] = true
	}

	if r := file[TripsFile]; r != nil {
		t.Trips, err = ParseTrips(r)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", TripsFile, err)
		}
		t.Found[TripsFile] = true
	}

	return t, nil
}
