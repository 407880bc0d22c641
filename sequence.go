package estimator

import (
	"github.com/fabianabarca/estimator/model"
)

// Returns the stops of a route and shape, in order of first
// appearance and without duplicates. Unknown combinations yield an
// empty sequence.
func StopSequence(routeID string, shapeID string, routeStops []model.RouteStop) []string {
	sequence := []string{}
	seen := map[string]bool{}
	for _, rs := range routeStops {
		if rs.RouteID != routeID || rs.ShapeID != shapeID {
			continue
		}
		if seen[rs.StopID] {
			continue
		}
		seen[rs.StopID] = true
		sequence = append(sequence, rs.StopID)
	}
	return sequence
}

type routeShape struct {
	routeID string
	shapeID string
}

// Stop sequences for all route and shape combinations, resolved in a
// single pass over the route stops.
type SequenceIndex struct {
	sequences map[routeShape][]string
}

func NewSequenceIndex(routeStops []model.RouteStop) *SequenceIndex {
	idx := &SequenceIndex{sequences: map[routeShape][]string{}}
	seen := map[routeShape]map[string]bool{}

	for _, rs := range routeStops {
		key := routeShape{rs.RouteID, rs.ShapeID}
		if seen[key] == nil {
			seen[key] = map[string]bool{}
		}
		if seen[key][rs.StopID] {
			continue
		}
		seen[key][rs.StopID] = true
		idx.sequences[key] = append(idx.sequences[key], rs.StopID)
	}

	return idx
}

// Same as StopSequence. The returned slice is a copy.
func (idx *SequenceIndex) Sequence(routeID string, shapeID string) []string {
	stops := idx.sequences[routeShape{routeID, shapeID}]
	sequence := make([]string, len(stops))
	copy(sequence, stops)
	return sequence
}
