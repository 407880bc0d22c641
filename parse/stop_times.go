package parse

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/fabianabarca/estimator/model"
)

// Column order follows the GTFS reference for stop_times.txt.
type StopTimeCSV struct {
	TripID            string `csv:"trip_id"`
	ArrivalTime       string `csv:"arrival_time"`
	DepartureTime     string `csv:"departure_time"`
	StopID            string `csv:"stop_id"`
	StopSequence      uint32 `csv:"stop_sequence"`
	Timepoint         int8   `csv:"timepoint"`
	ShapeDistTraveled string `csv:"shape_dist_traveled"`
	StopHeadsign      string `csv:"stop_headsign"`
	PickupType        int8   `csv:"pickup_type"`
	DropOffType       int8   `csv:"drop_off_type"`
	ContinuousPickup  int8   `csv:"continuous_pickup"`
	ContinuousDropOff int8   `csv:"continuous_drop_off"`
}

// Writes generated stop times as CSV, header included.
func WriteStopTimes(w io.Writer, stopTimes []model.StopTime) error {
	rows := make([]*StopTimeCSV, 0, len(stopTimes))
	for _, st := range stopTimes {
		rows = append(rows, &StopTimeCSV{
			TripID:            st.TripID,
			ArrivalTime:       st.ArrivalTime,
			DepartureTime:     st.DepartureTime,
			StopID:            st.StopID,
			StopSequence:      st.StopSequence,
			Timepoint:         st.Timepoint,
			ShapeDistTraveled: strconv.FormatFloat(st.ShapeDistTraveled, 'f', -1, 64),
			StopHeadsign:      st.StopHeadsign,
			PickupType:        st.PickupType,
			DropOffType:       st.DropOffType,
			ContinuousPickup:  st.ContinuousPickup,
			ContinuousDropOff: st.ContinuousDropOff,
		})
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return errors.Wrap(err, "marshaling stop_times csv")
	}

	return nil
}

// Reads back a table written by WriteStopTimes.
func ParseStopTimes(data io.Reader) ([]model.StopTime, error) {
	stopTimes := []model.StopTime{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *StopTimeCSV) error {
		i += 1
		var dist float64
		if st.ShapeDistTraveled != "" {
			var err error
			dist, err = strconv.ParseFloat(st.ShapeDistTraveled, 64)
			if err != nil {
				return errors.Wrapf(err, "parsing shape_dist_traveled (row %d)", i+1)
			}
		}

		stopTimes = append(stopTimes, model.StopTime{
			TripID:            st.TripID,
			ArrivalTime:       st.ArrivalTime,
			DepartureTime:     st.DepartureTime,
			StopID:            st.StopID,
			StopSequence:      st.StopSequence,
			Timepoint:         st.Timepoint,
			ShapeDistTraveled: dist,
			StopHeadsign:      st.StopHeadsign,
			PickupType:        st.PickupType,
			DropOffType:       st.DropOffType,
			ContinuousPickup:  st.ContinuousPickup,
			ContinuousDropOff: st.ContinuousDropOff,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling stop_times csv")
	}

	return stopTimes, nil
}

// The columns of a GTFS static stop_times.txt needed to derive route
// stops and scheduled departures.
type ScheduledStopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	StopID        string `csv:"stop_id"`
	StopSequence  uint32 `csv:"stop_sequence"`
}

type scheduledStop struct {
	stopID   string
	sequence uint32
	// Departure, or arrival if departure is missing. Zero when
	// the stop isn't a timepoint.
	departure time.Duration
	timed     bool
}

// Groups a GTFS stop_times.txt by trip, each trip's stops in
// stop_sequence order. Every trip_id must be known from trips.
func parseScheduledStopTimes(data io.Reader, trips map[string]bool) (map[string][]scheduledStop, error) {
	stops := map[string][]scheduledStop{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *ScheduledStopTimeCSV) error {
		i += 1
		if !trips[st.TripID] {
			return fmt.Errorf("unknown trip_id '%s' (row %d)", st.TripID, i+1)
		}
		if st.StopID == "" {
			return fmt.Errorf("missing stop_id (row %d)", i+1)
		}

		s := scheduledStop{stopID: st.StopID, sequence: st.StopSequence}

		clock := st.DepartureTime
		if clock == "" {
			clock = st.ArrivalTime
		}
		if clock != "" {
			d, err := model.ParseClock(clock)
			if err != nil {
				return errors.Wrapf(err, "parsing departure_time (row %d)", i+1)
			}
			s.departure = d
			s.timed = true
		}

		stops[st.TripID] = append(stops[st.TripID], s)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling stop_times csv")
	}

	for tripID, seq := range stops {
		sort.SliceStable(seq, func(i, j int) bool {
			return seq[i].sequence < seq[j].sequence
		})
		for k := 1; k < len(seq); k++ {
			if seq[k].sequence == seq[k-1].sequence {
				return nil, fmt.Errorf("duplicate stop_sequence %d for trip_id '%s'", seq[k].sequence, tripID)
			}
		}
	}

	return stops, nil
}
