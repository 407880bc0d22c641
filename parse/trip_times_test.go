package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianabarca/estimator/model"
)

func TestParseScheduledTrips(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		err     bool
		trips   []model.ScheduledTrip
	}{
		{
			"trip_departure_time",
			`
trip_id,trip_departure_time
t1,08:00
t2,08:30:15
t1,09:00`,
			false,
			[]model.ScheduledTrip{
				{TripID: "t1", DepartureTime: "08:00"},
				{TripID: "t2", DepartureTime: "08:30:15"},
				{TripID: "t1", DepartureTime: "09:00"},
			},
		},

		{
			"legacy trip_time",
			`
trip_id,trip_time
t1,06:15`,
			false,
			[]model.ScheduledTrip{{TripID: "t1", DepartureTime: "06:15"}},
		},

		{
			"empty trip_id",
			`
trip_id,trip_departure_time
,08:00`,
			true, nil,
		},

		{
			"missing departure",
			`
trip_id
t1`,
			true, nil,
		},

		{
			"invalid departure",
			`
trip_id,trip_departure_time
t1,8h`,
			true, nil,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			trips, err := ParseScheduledTrips(bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.trips, trips)
		})
	}
}
