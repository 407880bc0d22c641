package parse

import (
	"fmt"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"

	"github.com/fabianabarca/estimator/model"
)

// Observations recorded from one or more GTFS Realtime feeds.
type Realtime struct {
	// Timestamp of the feed. If loaded from multiple feeds, the
	// last one wins.
	Timestamp    uint64
	Observations []model.Observation

	// These exist to simplify debugging down the road
	NumScheduledTrips   int
	NumUnknownTrips     int
	NumAddedTrips       int
	NumUnscheduledTrips int
	NumCanceledTrips    int
	NumDuplicatedTrips  int
}

type observationKey struct {
	tripID string
	date   string
	stopID string
}

type occurrenceKey struct {
	tripID string
	date   string
}

type realtimeParser struct {
	rt       *Realtime
	trips    map[string]model.TripMetadata
	location *time.Location
	index    map[observationKey]int
	started  map[occurrenceKey]bool
}

// Turns TripUpdates of GTFS Realtime feeds into observed arrivals.
//
// Route, service and shape are looked up in trips, and trip updates
// for trips not found there are ignored. Event times are converted to
// offsets from midnight of the trip's start date in loc. The first
// stop reported for each trip occurrence is its timepoint.
//
// Feeds are expected in the order they were fetched. When several
// report the same trip, date and stop, the last one wins.
func ParseRealtime(feeds [][]byte, trips []model.TripMetadata, loc *time.Location) (*Realtime, error) {
	if loc == nil {
		loc = time.UTC
	}

	p := &realtimeParser{
		rt:       &Realtime{Observations: []model.Observation{}},
		trips:    map[string]model.TripMetadata{},
		location: loc,
		index:    map[observationKey]int{},
		started:  map[occurrenceKey]bool{},
	}
	for _, t := range trips {
		if _, found := p.trips[t.TripID]; !found {
			p.trips[t.TripID] = t
		}
	}

	for _, feed := range feeds {
		f := &gtfsproto.FeedMessage{}
		err := proto.Unmarshal(feed, f)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
		}

		header := f.GetHeader()

		version := header.GetGtfsRealtimeVersion()
		if version != "2.0" && version != "1.0" {
			return nil, fmt.Errorf("version %s not supported", version)
		}

		if header.GetIncrementality() != gtfsproto.FeedHeader_FULL_DATASET {
			return nil, fmt.Errorf("feed incrementality %s not supported", header.GetIncrementality())
		}

		p.rt.Timestamp = header.GetTimestamp()

		err = p.processEntities(f.GetEntity())
		if err != nil {
			return nil, fmt.Errorf("processing entities: %w", err)
		}
	}

	return p.rt, nil
}

func (p *realtimeParser) processEntities(entities []*gtfsproto.FeedEntity) error {
	for _, entity := range entities {
		if entity.TripUpdate == nil {
			continue
		}

		trip := entity.TripUpdate.Trip
		if trip == nil {
			return fmt.Errorf("trip_update missing trip")
		}

		// Trips identified by route and start time alone can't
		// be matched to trip metadata.
		if trip.GetTripId() == "" {
			continue
		}

		switch trip.GetScheduleRelationship() {

		case gtfsproto.TripDescriptor_SCHEDULED:
			meta, found := p.trips[trip.GetTripId()]
			if !found {
				p.rt.NumUnknownTrips++
				continue
			}
			err := p.processTripUpdate(meta, trip, entity.TripUpdate.GetStopTimeUpdate())
			if err != nil {
				return fmt.Errorf("trip '%s': %w", trip.GetTripId(), err)
			}
			p.rt.NumScheduledTrips++

		case gtfsproto.TripDescriptor_ADDED:
			p.rt.NumAddedTrips++

		case gtfsproto.TripDescriptor_UNSCHEDULED:
			p.rt.NumUnscheduledTrips++

		case gtfsproto.TripDescriptor_CANCELED:
			p.rt.NumCanceledTrips++

		case gtfsproto.TripDescriptor_DUPLICATED:
			p.rt.NumDuplicatedTrips++

		}
	}

	return nil
}

func (p *realtimeParser) processTripUpdate(
	meta model.TripMetadata,
	trip *gtfsproto.TripDescriptor,
	updates []*gtfsproto.TripUpdate_StopTimeUpdate,
) error {
	var midnight time.Time
	var date string

	if startDate := trip.GetStartDate(); startDate != "" {
		d, err := time.ParseInLocation("20060102", startDate, p.location)
		if err != nil {
			return fmt.Errorf("parsing start_date '%s': %w", startDate, err)
		}
		midnight = d
		date = d.Format("2006-01-02")
	}

	for _, update := range updates {
		if update.GetStopId() == "" {
			if update.StopSequence == nil {
				return fmt.Errorf("stop_time_update missing stop_id and stop_sequence")
			}
			// Resolving stop_sequence needs the static
			// stop_times, which aren't at hand.
			continue
		}

		if update.GetScheduleRelationship() != gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED {
			continue
		}

		unix := update.GetArrival().GetTime()
		if unix == 0 {
			unix = update.GetDeparture().GetTime()
		}
		if unix == 0 {
			continue
		}
		event := time.Unix(unix, 0).In(p.location)

		if date == "" {
			midnight = time.Date(event.Year(), event.Month(), event.Day(), 0, 0, 0, 0, p.location)
			date = midnight.Format("2006-01-02")
		}

		arrival := event.Sub(midnight)
		if arrival < 0 {
			return fmt.Errorf("stop '%s' reported before start date %s", update.GetStopId(), date)
		}

		p.record(model.Observation{
			TripID:    meta.TripID,
			Date:      date,
			StopID:    update.GetStopId(),
			RouteID:   meta.RouteID,
			ServiceID: meta.ServiceID,
			ShapeID:   meta.ShapeID,
			Arrival:   arrival,
		})
	}

	return nil
}

func (p *realtimeParser) record(o model.Observation) {
	key := observationKey{tripID: o.TripID, date: o.Date, stopID: o.StopID}
	if i, found := p.index[key]; found {
		o.Timepoint = p.rt.Observations[i].Timepoint
		p.rt.Observations[i] = o
		return
	}

	occurrence := occurrenceKey{tripID: o.TripID, date: o.Date}
	o.Timepoint = !p.started[occurrence]
	p.started[occurrence] = true

	p.index[key] = len(p.rt.Observations)
	p.rt.Observations = append(p.rt.Observations, o)
}
