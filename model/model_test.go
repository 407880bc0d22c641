package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out time.Duration
		err bool
	}{
		{"08:00", 8 * time.Hour, false},
		{"08:00:00", 8 * time.Hour, false},
		{"00:00:01", time.Second, false},
		{"23:59:59", 24*time.Hour - time.Second, false},
		{"25:10:00", 25*time.Hour + 10*time.Minute, false},
		{" 7:05 ", 7*time.Hour + 5*time.Minute, false},
		{"", 0, true},
		{"08", 0, true},
		{"08:00:00:00", 0, true},
		{"aa:00", 0, true},
		{"08:60", 0, true},
		{"08:00:60", 0, true},
		{"-1:00", 0, true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			d, err := ParseClock(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.out, d)
		})
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatClock(0))
	assert.Equal(t, "08:00:00", FormatClock(8*time.Hour))
	assert.Equal(t, "08:01:02", FormatClock(8*time.Hour+time.Minute+2*time.Second+400*time.Millisecond))
	assert.Equal(t, "23:59:59", FormatClock(24*time.Hour-time.Second))

	// Wraps around midnight in both directions
	assert.Equal(t, "00:30:00", FormatClock(24*time.Hour+30*time.Minute))
	assert.Equal(t, "23:59:00", FormatClock(-time.Minute))
	assert.Equal(t, "01:00:00", FormatClock(49*time.Hour))
}

func TestCurveKey(t *testing.T) {
	o := Observation{
		TripID:    "t",
		RouteID:   "r",
		ServiceID: "s",
		ShapeID:   "sh",
		StopID:    "st",
	}
	assert.Equal(t, CurveKey{"r", "s", "sh", "st"}, o.CurveKey())
	assert.Equal(t, "r/s/sh/st", o.CurveKey().String())
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "A", MethodA.String())
	assert.Equal(t, "B", MethodB.String())
	assert.Equal(t, "Method(7)", Method(7).String())
}
