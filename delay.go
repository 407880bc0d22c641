package estimator

import (
	"errors"
	"fmt"

	"github.com/fabianabarca/estimator/model"
)

var ErrReferenceNotFound = errors.New("no timepoint in trip occurrence")

// Computes the delay of every observation in a trip occurrence,
// relative to the arrival at its first timepoint (in input order).
//
// The group is not modified. Delays before the reference are
// negative.
func ComputeDelays(group []model.Observation) ([]model.Delay, error) {
	ref := -1
	for i, o := range group {
		if o.Timepoint {
			ref = i
			break
		}
	}
	if ref < 0 {
		if len(group) == 0 {
			return nil, ErrReferenceNotFound
		}
		return nil, fmt.Errorf("trip '%s' on '%s': %w", group[0].TripID, group[0].Date, ErrReferenceNotFound)
	}

	t0 := group[ref].Arrival

	delays := make([]model.Delay, len(group))
	for i, o := range group {
		delays[i] = model.Delay{
			Observation: o,
			Delay:       (o.Arrival - t0).Seconds(),
		}
	}

	return delays, nil
}
