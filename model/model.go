package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Holds all external facing types and constants.

// Placeholder written instead of a time for stops lacking a delay
// curve.
const Unmappable = "No se puede estimar"

// Estimation method. Method A estimates from route geometry and
// average speed, method B from fitted delay curves.
type Method int

const (
	MethodA Method = iota
	MethodB
)

func (m Method) String() string {
	switch m {
	case MethodA:
		return "A"
	case MethodB:
		return "B"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// One recorded arrival at one stop on one historical trip
// occurrence.
type Observation struct {
	TripID    string
	Date      string
	StopID    string
	RouteID   string
	ServiceID string
	ShapeID   string
	Arrival   time.Duration
	Timepoint bool
}

func (o Observation) CurveKey() CurveKey {
	return CurveKey{
		RouteID:   o.RouteID,
		ServiceID: o.ServiceID,
		ShapeID:   o.ShapeID,
		StopID:    o.StopID,
	}
}

// An Observation with its delay, in seconds, relative to the first
// timepoint of its trip occurrence.
type Delay struct {
	Observation
	Delay float64
}

// Identifies a single delay curve.
type CurveKey struct {
	RouteID   string
	ServiceID string
	ShapeID   string
	StopID    string
}

func (k CurveKey) String() string {
	return strings.Join([]string{k.RouteID, k.ServiceID, k.ShapeID, k.StopID}, "/")
}

type RouteStop struct {
	RouteID string
	ShapeID string
	StopID  string
}

// A trip to generate stop times for.
type ScheduledTrip struct {
	TripID        string
	DepartureTime string
}

type TripMetadata struct {
	TripID    string
	RouteID   string
	ServiceID string
	ShapeID   string
}

// A single row of the generated stop_times table. Times are HH:MM:SS
// or Unmappable.
type StopTime struct {
	TripID            string
	ArrivalTime       string
	DepartureTime     string
	StopID            string
	StopSequence      uint32
	Timepoint         int8
	ShapeDistTraveled float64
	StopHeadsign      string
	PickupType        int8
	DropOffType       int8
	ContinuousPickup  int8
	ContinuousDropOff int8
}

func (st *StopTime) Estimated() bool {
	return st.ArrivalTime != Unmappable
}

// Parses a time of day on the form HH:MM or HH:MM:SS into an offset
// from midnight. Hours above 23 are accepted, as in GTFS.
func ParseClock(s string) (time.Duration, error) {
	split := strings.Split(strings.TrimSpace(s), ":")
	if len(split) != 2 && len(split) != 3 {
		return 0, fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[0] > 99 {
		return 0, fmt.Errorf("invalid hour in '%s'", s)
	}
	if hms[1] < 0 || hms[1] > 59 {
		return 0, fmt.Errorf("invalid minute in '%s'", s)
	}
	if hms[2] < 0 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid second in '%s'", s)
	}

	return time.Duration(hms[0])*time.Hour +
		time.Duration(hms[1])*time.Minute +
		time.Duration(hms[2])*time.Second, nil
}

// Formats an offset from midnight as HH:MM:SS. The offset is wrapped
// into [0, 24h).
func FormatClock(d time.Duration) string {
	d = d.Truncate(time.Second) % (24 * time.Hour)
	if d < 0 {
		d += 24 * time.Hour
	}
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
