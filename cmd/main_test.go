package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	p "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"

	"github.com/fabianabarca/estimator"
	"github.com/fabianabarca/estimator/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeInput(t *testing.T) string {
	fleet := testutil.Fleet{
		RouteID:    "R1",
		ServiceID:  "S1",
		ShapeID:    "SH1",
		Stops:      []string{"A", "B", "C"},
		Departures: testutil.Hourly(6, 20),
		Offset: func(stop int, departure time.Duration) time.Duration {
			return time.Duration(stop) * 5 * time.Minute
		},
	}

	path := filepath.Join(t.TempDir(), "input.zip")
	require.NoError(t, os.WriteFile(path, testutil.BuildZip(t, fleet.Files()), 0644))
	return path
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"Authorization: Bearer x", "X-Api-Key:abc:def"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer x",
		"X-Api-Key":     "abc:def",
	}, h)

	_, err = parseHeaders([]string{"nope"})
	assert.Error(t, err)
}

func TestGenerateCommand(t *testing.T) {
	input := writeInput(t)
	output := filepath.Join(t.TempDir(), "stop_times.txt")
	metricsPath := filepath.Join(t.TempDir(), "estimator.prom")

	_, err := run(t,
		"generate",
		"--storage", "memory",
		"--input", input,
		"--output", output,
		"--method", "B",
		"--curves", "",
		"--store=false",
		"--metrics-file", metricsPath,
	)
	require.NoError(t, err)

	buf, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
	require.Equal(t, 1+15*3, len(lines))
	assert.Equal(t, "trip_id,arrival_time,departure_time,stop_id,stop_sequence,timepoint,shape_dist_traveled,stop_headsign,pickup_type,drop_off_type,continuous_pickup,continuous_drop_off", lines[0])
	assert.Equal(t, "R1-0,06:00:00,06:00:00,A,0,1,0,,0,0,0,0", lines[1])
	assert.Equal(t, "R1-0,06:05:00,06:05:00,B,1,0,0,,0,0,0,0", lines[2])
	assert.Equal(t, "R1-0,06:10:00,06:10:00,C,2,0,0,,0,0,0,0", lines[3])

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "estimator_trips_generated_total 15")
}

func TestGenerateCommandMethodA(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "stop_times.txt")

	// Fails before the input is read
	_, err := run(t,
		"generate",
		"--storage", "memory",
		"--input", filepath.Join(dir, "missing.zip"),
		"--output", output,
		"--method", "A",
		"--metrics-file", "",
	)
	assert.ErrorIs(t, err, estimator.ErrNotImplemented)

	// and before any curves are fitted and stored
	input := writeInput(t)
	_, err = run(t,
		"generate",
		"--storage", "sqlite",
		"--sqlite-dir", dir,
		"--input", input,
		"--output", output,
		"--method", "A",
		"--store",
		"--metrics-file", "",
	)
	assert.ErrorIs(t, err, estimator.ErrNotImplemented)

	out, err := run(t, "curves", "--storage", "sqlite", "--sqlite-dir", dir, "--source", "", "--delete=false")
	require.NoError(t, err)
	assert.NotContains(t, out, input)

	_, err = os.Stat(output)
	assert.True(t, os.IsNotExist(err))

	_, err = run(t,
		"generate",
		"--storage", "memory",
		"--input", writeInput(t),
		"--method", "Z",
	)
	assert.Error(t, err)
}

func TestWriteOutput(t *testing.T) {
	dir := t.TempDir()

	for _, tc := range []struct {
		name     string
		path     string
		writeErr error
		stdout   string
		file     string
		err      bool
	}{
		{"stdout", "-", nil, "hello", "", false},
		{"file", filepath.Join(dir, "out.txt"), nil, "", "hello", false},
		{"write error", filepath.Join(dir, "failed.txt"), errors.New("boom"), "", "", true},
		{"missing directory", filepath.Join(dir, "nope", "out.txt"), nil, "", "", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			err := writeOutput(stdout, tc.path, func(w io.Writer) error {
				if tc.writeErr != nil {
					return tc.writeErr
				}
				_, err := w.Write([]byte("hello"))
				return err
			})
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.stdout, stdout.String())

			if tc.file != "" {
				data, err := os.ReadFile(tc.path)
				require.NoError(t, err)
				assert.Equal(t, tc.file, string(data))
			}
		})
	}
}

func TestFitCurvesEstimateCommands(t *testing.T) {
	input := writeInput(t)
	dir := t.TempDir()

	out, err := run(t,
		"fit",
		"--storage", "sqlite",
		"--sqlite-dir", dir,
		"--input", input,
		"--metrics-file", "",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "3 curves from 45 observations")

	out, err = run(t, "curves", "--storage", "sqlite", "--sqlite-dir", dir, "--source", "", "--delete=false")
	require.NoError(t, err)
	assert.Contains(t, out, input)

	out, err = run(t, "curves", "latest", "--storage", "sqlite", "--sqlite-dir", dir, "--delete=false")
	require.NoError(t, err)
	assert.Contains(t, out, "R1")
	assert.Equal(t, 4, len(strings.Split(strings.TrimSpace(out), "\n")))

	out, err = run(t,
		"estimate", "R1", "S1", "SH1", "07:30",
		"--storage", "sqlite",
		"--sqlite-dir", dir,
		"--input", input,
		"--curves", "latest",
	)
	require.NoError(t, err)
	assert.Equal(t, "A 07:30:00\nB 07:35:00\nC 07:40:00\n", out)

	_, err = run(t,
		"estimate", "R9", "S1", "SH1", "07:30",
		"--storage", "sqlite",
		"--sqlite-dir", dir,
		"--input", input,
		"--curves", "latest",
	)
	assert.Error(t, err)
}

func writeGTFS(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "gtfs.zip")
	require.NoError(t, os.WriteFile(path, testutil.BuildZip(t, map[string][]string{
		"agency.txt": {
			"agency_id,agency_name,agency_url,agency_timezone",
			"ag,Agency,http://example.com,UTC",
		},
		"routes.txt": {
			"route_id,agency_id,route_short_name,route_type",
			"R1,ag,R,3",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"A,A,9.93,-84.08",
			"B,B,9.94,-84.07",
			"C,C,9.95,-84.06",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"S1,1,1,1,1,1,0,0,20240101,20241231",
		},
		"shapes.txt": {
			"shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence",
			"SH1,9.93,-84.08,1",
			"SH1,9.95,-84.06,2",
		},
		"trips.txt": {
			"route_id,service_id,trip_id,shape_id",
			"R1,S1,T1,SH1",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"T1,07:00:00,07:00:00,A,1",
			"T1,07:05:00,07:05:00,B,2",
			"T1,07:10:00,07:10:00,C,3",
		},
	}), 0644))
	return path
}

func writeFeed(t *testing.T, arrivals ...string) string {
	updates := []*p.TripUpdate_StopTimeUpdate{}
	for i := 0; i+1 < len(arrivals); i += 2 {
		at, err := time.Parse("2006-01-02 15:04", "2024-03-01 "+arrivals[i+1])
		require.NoError(t, err)
		updates = append(updates, &p.TripUpdate_StopTimeUpdate{
			StopId:  proto.String(arrivals[i]),
			Arrival: &p.TripUpdate_StopTimeEvent{Time: proto.Int64(at.Unix())},
		})
	}

	data, err := proto.Marshal(&p.FeedMessage{
		Header: &p.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*p.FeedEntity{
			{
				Id: proto.String("e"),
				TripUpdate: &p.TripUpdate{
					Trip:           &p.TripDescriptor{TripId: proto.String("T1")},
					StopTimeUpdate: updates,
				},
			},
		},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "feed.pb")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestRecordCommand(t *testing.T) {
	gtfs := writeGTFS(t)
	output := filepath.Join(t.TempDir(), "stop_times_measurement.csv")

	_, err := run(t,
		"record",
		"--storage", "memory",
		"--gtfs", gtfs,
		"--feed", writeFeed(t, "A", "07:00", "B", "07:06"),
		"--output", output,
		"--append",
		"--timezone", "",
		"--metrics-file", "",
	)
	require.NoError(t, err)

	_, err = run(t,
		"record",
		"--storage", "memory",
		"--gtfs", gtfs,
		"--feed", writeFeed(t, "B", "07:07", "C", "07:13"),
		"--output", output,
		"--append",
	)
	require.NoError(t, err)

	buf, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"trip_id,date,stop_id,route_id,service_id,shape_id,arrival_time,timepoint",
		"T1,2024-03-01,A,R1,S1,SH1,07:00:00,1",
		"T1,2024-03-01,B,R1,S1,SH1,07:07:00,0",
		"T1,2024-03-01,C,R1,S1,SH1,07:13:00,0",
	}, strings.Split(strings.TrimSpace(string(buf)), "\n"))

	// Appending to stdout makes no sense
	_, err = run(t,
		"record",
		"--storage", "memory",
		"--gtfs", gtfs,
		"--feed", writeFeed(t, "A", "07:00"),
		"--output", "-",
		"--append",
	)
	assert.Error(t, err)
}
