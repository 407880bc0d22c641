package parse

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianabarca/estimator/model"
)

func TestParseObservations(t *testing.T) {
	for _, tc := range []struct {
		name         string
		content      string
		err          bool
		observations []model.Observation
	}{
		{
			"minimal",
			`
trip_id,stop_id,route_id,arrival_time
t,s,r,10:00:00`,
			false,
			[]model.Observation{
				{TripID: "t", StopID: "s", RouteID: "r", Arrival: 10 * time.Hour},
			},
		},

		{
			"all fields, row order preserved",
			`
trip_id,date,stop_id,route_id,service_id,shape_id,arrival_time,timepoint
t,20240102,s2,r,wd,sh,10:05:00,0
t,20240102,s1,r,wd,sh,10:00:00,1
t,20240101,s1,r,wd,sh,09:59:30,1`,
			false,
			[]model.Observation{
				{TripID: "t", Date: "20240102", StopID: "s2", RouteID: "r", ServiceID: "wd", ShapeID: "sh", Arrival: 10*time.Hour + 5*time.Minute},
				{TripID: "t", Date: "20240102", StopID: "s1", RouteID: "r", ServiceID: "wd", ShapeID: "sh", Arrival: 10 * time.Hour, Timepoint: true},
				{TripID: "t", Date: "20240101", StopID: "s1", RouteID: "r", ServiceID: "wd", ShapeID: "sh", Arrival: 9*time.Hour + 59*time.Minute + 30*time.Second, Timepoint: true},
			},
		},

		{
			"header only",
			`
trip_id,date,stop_id,route_id,service_id,shape_id,arrival_time,timepoint`,
			false,
			[]model.Observation{},
		},

		{
			"missing trip_id",
			`
stop_id,route_id,arrival_time
s,r,10:00:00`,
			true, nil,
		},

		{
			"missing stop_id",
			`
trip_id,route_id,arrival_time
t,r,10:00:00`,
			true, nil,
		},

		{
			"missing route_id",
			`
trip_id,stop_id,arrival_time
t,s,10:00:00`,
			true, nil,
		},

		{
			"invalid arrival_time",
			`
trip_id,stop_id,route_id,arrival_time
t,s,r,10:00:derp`,
			true, nil,
		},

		{
			"invalid timepoint",
			`
trip_id,stop_id,route_id,arrival_time,timepoint
t,s,r,10:00:00,2`,
			true, nil,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			observations, err := ParseObservations(bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.observations, observations)
		})
	}
}

func TestWriteObservations(t *testing.T) {
	observations := []model.Observation{
		{TripID: "t", Date: "2024-01-02", StopID: "s1", RouteID: "r", ServiceID: "wd", ShapeID: "sh", Arrival: 23*time.Hour + 59*time.Minute, Timepoint: true},
		{TripID: "t", Date: "2024-01-02", StopID: "s2", RouteID: "r", ServiceID: "wd", ShapeID: "sh", Arrival: 24*time.Hour + 4*time.Minute + 5*time.Second},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteObservations(buf, observations))

	assert.Equal(t, []string{
		"trip_id,date,stop_id,route_id,service_id,shape_id,arrival_time,timepoint",
		"t,2024-01-02,s1,r,wd,sh,23:59:00,1",
		"t,2024-01-02,s2,r,wd,sh,24:04:05,0",
	}, strings.Split(strings.TrimSpace(buf.String()), "\n"))

	// Reads back as written
	parsed, err := ParseObservations(bytes.NewBufferString(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, observations, parsed)
}

func TestMergeObservations(t *testing.T) {
	existing := []model.Observation{
		{TripID: "t1", Date: "d1", StopID: "a", Arrival: 1 * time.Hour, Timepoint: true},
		{TripID: "t1", Date: "d1", StopID: "b", Arrival: 2 * time.Hour},
	}
	recorded := []model.Observation{
		// Revised arrival, first reported in this recording
		{TripID: "t1", Date: "d1", StopID: "b", Arrival: 3 * time.Hour, Timepoint: true},
		// New stop on known occurrence
		{TripID: "t1", Date: "d1", StopID: "c", Arrival: 4 * time.Hour},
		// New occurrence
		{TripID: "t1", Date: "d2", StopID: "a", Arrival: 5 * time.Hour, Timepoint: true},
	}

	merged := MergeObservations(existing, recorded)

	assert.Equal(t, []model.Observation{
		{TripID: "t1", Date: "d1", StopID: "a", Arrival: 1 * time.Hour, Timepoint: true},
		{TripID: "t1", Date: "d1", StopID: "b", Arrival: 3 * time.Hour},
		{TripID: "t1", Date: "d1", StopID: "c", Arrival: 4 * time.Hour},
		{TripID: "t1", Date: "d2", StopID: "a", Arrival: 5 * time.Hour, Timepoint: true},
	}, merged)

	// Inputs untouched
	assert.Equal(t, 2*time.Hour, existing[1].Arrival)
	assert.True(t, recorded[0].Timepoint)
}
