package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianabarca/estimator/model"
)

func validGTFS() map[string][]string {
	return map[string][]string{
		"agency.txt": {
			"agency_id,agency_name,agency_url,agency_timezone",
			"ag,Agency,http://example.com,America/Costa_Rica",
		},
		"routes.txt": {
			"route_id,agency_id,route_short_name,route_type",
			"r,ag,R,3",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"a,A,9.93,-84.08",
			"b,B,9.94,-84.07",
			"c,C,9.95,-84.06",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"wd,1,1,1,1,1,0,0,20240101,20241231",
		},
		"shapes.txt": {
			"shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence",
			"sh,9.93,-84.08,1",
			"sh,9.95,-84.06,2",
		},
		"trips.txt": {
			"route_id,service_id,trip_id,shape_id",
			"r,wd,t1,sh",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t1,06:10:00,06:10:00,c,3",
			"t1,06:00:00,06:00:30,a,1",
			"t1,06:05:00,06:05:00,b,2",
		},
	}
}

func TestParseGTFS(t *testing.T) {
	tables, err := ParseGTFS(buildZip(t, validGTFS()))
	require.NoError(t, err)

	assert.Equal(t, []model.TripMetadata{
		{TripID: "t1", RouteID: "r", ServiceID: "wd", ShapeID: "sh"},
	}, tables.Trips)
	assert.Equal(t, []model.RouteStop{
		{RouteID: "r", ShapeID: "sh", StopID: "a"},
		{RouteID: "r", ShapeID: "sh", StopID: "b"},
		{RouteID: "r", ShapeID: "sh", StopID: "c"},
	}, tables.RouteStops)
	assert.Equal(t, []model.ScheduledTrip{
		{TripID: "t1", DepartureTime: "06:00:30"},
	}, tables.ScheduledTrips)

	assert.Equal(t, "America/Costa_Rica", tables.Timezone)

	assert.True(t, tables.Found[TripsFile])
	assert.False(t, tables.Found[ObservationsFile])
}

func TestParseGTFSInvalid(t *testing.T) {
	_, err := ParseGTFS([]byte("garbage"))
	assert.Error(t, err)

	for _, tc := range []struct {
		name   string
		modify func(files map[string][]string)
	}{
		{"missing stop_times.txt", func(files map[string][]string) {
			delete(files, "stop_times.txt")
		}},
		{"missing agency.txt", func(files map[string][]string) {
			delete(files, "agency.txt")
		}},
		{"trip with unknown route", func(files map[string][]string) {
			files["trips.txt"] = append(files["trips.txt"], "x,wd,t2,sh")
		}},
		{"stop time with unknown trip", func(files map[string][]string) {
			files["stop_times.txt"] = append(files["stop_times.txt"], "t9,06:20:00,06:20:00,c,1")
		}},
		{"duplicate stop_sequence", func(files map[string][]string) {
			files["stop_times.txt"] = append(files["stop_times.txt"], "t1,06:20:00,06:20:00,a,2")
		}},
		{"malformed departure_time", func(files map[string][]string) {
			files["stop_times.txt"][2] = "t1,6am,6am,a,1"
		}},
		{"first stop without time", func(files map[string][]string) {
			files["stop_times.txt"][2] = "t1,,,a,1"
		}},
		{"invalid route_type", func(files map[string][]string) {
			files["routes.txt"][1] = "r,ag,R,42"
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			files := validGTFS()
			tc.modify(files)
			_, err := ParseGTFS(buildZip(t, files))
			assert.Error(t, err)
		})
	}
}

func TestParseGTFSStopTimes(t *testing.T) {
	files := validGTFS()
	files["trips.txt"] = append(files["trips.txt"], "r,wd,t2,", "r,wd,t3,sh")
	files["stop_times.txt"] = []string{
		"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
		// Only arrival at the first stop, and no time at the second
		"t2,25:10:00,,b,10",
		"t2,,,c,20",
		"t1,06:00:00,06:00:30,a,1",
		"t1,06:05:00,06:05:00,b,2",
	}

	tables, err := ParseGTFS(buildZip(t, files))
	require.NoError(t, err)

	// Trips keep file order, and t3 has no stop times
	assert.Equal(t, []model.TripMetadata{
		{TripID: "t1", RouteID: "r", ServiceID: "wd", ShapeID: "sh"},
		{TripID: "t2", RouteID: "r", ServiceID: "wd"},
		{TripID: "t3", RouteID: "r", ServiceID: "wd", ShapeID: "sh"},
	}, tables.Trips)
	assert.Equal(t, []model.RouteStop{
		{RouteID: "r", ShapeID: "sh", StopID: "a"},
		{RouteID: "r", ShapeID: "sh", StopID: "b"},
		{RouteID: "r", StopID: "b"},
		{RouteID: "r", StopID: "c"},
	}, tables.RouteStops)
	assert.Equal(t, []model.ScheduledTrip{
		{TripID: "t1", DepartureTime: "06:00:30"},
		{TripID: "t2", DepartureTime: "01:10:00"},
	}, tables.ScheduledTrips)
}

func TestParseGTFSSubdirectory(t *testing.T) {
	files := map[string][]string{}
	for name, content := range validGTFS() {
		files["feed/"+name] = content
	}

	tables, err := ParseGTFS(buildZip(t, files))
	require.NoError(t, err)
	assert.Equal(t, "America/Costa_Rica", tables.Timezone)
	assert.Equal(t, 3, len(tables.RouteStops))
}
