package storage

import (
	"time"
)

// Persists fitted delay curves. Curves are written and read in sets,
// one set per fitting run.
type Storage interface {
	// Retrieves all curve sets matching the given filter, most
	// recently created first.
	ListCurveSets(filter ListCurveSetsFilter) ([]*CurveSet, error)

	// Writes a curve set along with its curves. If a set with the
	// same ID exists, it is replaced.
	WriteCurveSet(set *CurveSet, curves []*Curve) error

	// Reads all curves of a set, ordered by route, service, shape
	// and stop.
	ReadCurves(setID string) ([]*Curve, error)

	DeleteCurveSet(setID string) error

	Close() error
}

type ListCurveSetsFilter struct {
	// If set, only include the set with this ID.
	ID string

	// If set, only include sets fitted from the given source.
	Source string

	// If set, only include sets with the given content hash.
	Hash string
}

// Metadata for a set of curves fitted in a single run.
type CurveSet struct {
	ID     string
	Source string

	// Hash of the observations and degree the set was fitted
	// from.
	Hash string

	CreatedAt    time.Time
	Degree       int
	Observations int
	Curves       int
}

// A persisted delay curve. Coefficients are lowest order first, in
// terms of (x - Shift) / Scale.
type Curve struct {
	RouteID      string
	ServiceID    string
	ShapeID      string
	StopID       string
	Degree       int
	Coefficients []float64
	Shift        float64
	Scale        float64
	Samples      int
	Rank         int
	MinX         float64
	MaxX         float64
	RMSE         float64
}

func curveLess(a, b *Curve) bool {
	if a.RouteID != b.RouteID {
		return a.RouteID < b.RouteID
	}
	if a.ServiceID != b.ServiceID {
		return a.ServiceID < b.ServiceID
	}
	if a.ShapeID != b.ShapeID {
		return a.ShapeID < b.ShapeID
	}
	return a.StopID < b.StopID
}
