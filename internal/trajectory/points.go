package trajectory

import (
	"fmt"
	"sort"
)

// PointStore is the ordered control point set. The id-0 point always
// exists exactly once at index 0; other ids are assigned from 1 upward and
// never reused.
type PointStore struct {
	points   []ControlPoint
	nextID   int
	anchored bool
}

// NewPointStore creates a store holding only the id-0 point at origin. The
// store is unanchored until SyncEndEffector is called.
func NewPointStore(origin EndEffectorSample) *PointStore {
	return &PointStore{
		points: []ControlPoint{{ID: EndEffectorID, X: origin.X, Y: origin.Y, Z: origin.Z}},
		nextID: 1,
	}
}

// AddPoint appends a point at pos with the next unused id.
func (s *PointStore) AddPoint(pos EndEffectorSample) ControlPoint {
	p := ControlPoint{ID: s.nextID, X: pos.X, Y: pos.Y, Z: pos.Z}
	s.nextID++
	s.points = append(s.points, p)
	return p
}

// RemovePoints drops every requested id except 0 and returns the ids that
// were actually removed, in store order.
func (s *PointStore) RemovePoints(ids []int) []int {
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		if id != EndEffectorID {
			drop[id] = true
		}
	}

	kept := s.points[:0:0]
	var removed []int
	for _, p := range s.points {
		if drop[p.ID] {
			removed = append(removed, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	s.points = kept
	return removed
}

// ClearAllExcept0 removes every point other than id 0.
func (s *PointStore) ClearAllExcept0() []int {
	return s.RemovePoints(s.RemovableIDs())
}

// UpdatePosition moves a point in place.
func (s *PointStore) UpdatePosition(id int, x, y, z float64) error {
	for i := range s.points {
		if s.points[i].ID == id {
			s.points[i].X, s.points[i].Y, s.points[i].Z = x, y, z
			return nil
		}
	}
	return fmt.Errorf("update point %d: %w", id, ErrPointNotFound)
}

// SyncEndEffector moves the id-0 point onto sample and marks the store
// anchored.
func (s *PointStore) SyncEndEffector(sample EndEffectorSample) {
	s.points[0].X, s.points[0].Y, s.points[0].Z = sample.X, sample.Y, sample.Z
	s.anchored = true
}

// Anchored reports whether id 0 has been synced to a real position.
func (s *PointStore) Anchored() bool { return s.anchored }

// Len returns the number of points, id 0 included.
func (s *PointStore) Len() int { return len(s.points) }

// NextID returns the id the next AddPoint will assign.
func (s *PointStore) NextID() int { return s.nextID }

// Points returns a copy of the ordered point set.
func (s *PointStore) Points() []ControlPoint {
	return append([]ControlPoint(nil), s.points...)
}

// Point looks up a point by id.
func (s *PointStore) Point(id int) (ControlPoint, bool) {
	for _, p := range s.points {
		if p.ID == id {
			return p, true
		}
	}
	return ControlPoint{}, false
}

// IDs returns every id in store order.
func (s *PointStore) IDs() []int {
	ids := make([]int, len(s.points))
	for i, p := range s.points {
		ids[i] = p.ID
	}
	return ids
}

// RemovableIDs returns the ids an operator may remove, ascending.
func (s *PointStore) RemovableIDs() []int {
	ids := make([]int, 0, len(s.points)-1)
	for _, p := range s.points {
		if p.ID != EndEffectorID {
			ids = append(ids, p.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

// Axes returns the coordinates as [xs, ys, zs] in store order, the layout
// the backend expects.
func (s *PointStore) Axes() [3][]float64 {
	var axes [3][]float64
	for i := range axes {
		axes[i] = make([]float64, len(s.points))
	}
	for i, p := range s.points {
		axes[0][i], axes[1][i], axes[2][i] = p.X, p.Y, p.Z
	}
	return axes
}
