package storage

import (
	"fmt"
	"sort"
	"sync"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	mutex  sync.Mutex
	Sets   map[string]*CurveSet
	Curves map[string][]*Curve
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Sets:   map[string]*CurveSet{},
		Curves: map[string][]*Curve{},
	}
}

func (s *MemoryStorage) ListCurveSets(filter ListCurveSetsFilter) ([]*CurveSet, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sets := []*CurveSet{}
	for _, set := range s.Sets {
		if filter.ID != "" && set.ID != filter.ID {
			continue
		}
		if filter.Source != "" && set.Source != filter.Source {
			continue
		}
		if filter.Hash != "" && set.Hash != filter.Hash {
			continue
		}
		cp := *set
		sets = append(sets, &cp)
	}
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].CreatedAt.After(sets[j].CreatedAt)
	})
	return sets, nil
}

func (s *MemoryStorage) WriteCurveSet(set *CurveSet, curves []*Curve) error {
	if set.ID == "" {
		return fmt.Errorf("curve set has no ID")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	cp := *set
	s.Sets[set.ID] = &cp

	stored := make([]*Curve, 0, len(curves))
	for _, c := range curves {
		cc := *c
		cc.Coefficients = append([]float64(nil), c.Coefficients...)
		stored = append(stored, &cc)
	}
	sort.SliceStable(stored, func(i, j int) bool {
		return curveLess(stored[i], stored[j])
	})
	s.Curves[set.ID] = stored

	return nil
}

func (s *MemoryStorage) ReadCurves(setID string) ([]*Curve, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.Sets[setID]; !found {
		return nil, fmt.Errorf("curve set '%s' not found", setID)
	}

	curves := make([]*Curve, 0, len(s.Curves[setID]))
	for _, c := range s.Curves[setID] {
		cc := *c
		cc.Coefficients = append([]float64(nil), c.Coefficients...)
		curves = append(curves, &cc)
	}
	return curves, nil
}

func (s *MemoryStorage) DeleteCurveSet(setID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.Sets[setID]; !found {
		return fmt.Errorf("curve set '%s' not found", setID)
	}
	delete(s.Sets, setID)
	delete(s.Curves, setID)
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
