// Package region answers point-in-region queries over a small set of
// axis-aligned regions such as grid-overlay cells and stitched tiles.
package region

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"annoview/pkg/grid"
)

// Region is an annotated interval. A nil Box is an empty mask and never
// contains any point.
type Region struct {
	ID        string
	Box       *r2.Box
	Timepoint uint32
}

// Contains reports whether p lies in the region. Boxes are half-open so
// that adjacent tiles never both claim a shared edge.
func (r Region) Contains(p r2.Vec) bool {
	if r.Box == nil {
		return false
	}
	b := r.Box
	return p.X >= b.Min.X && p.X < b.Max.X && p.Y >= b.Min.Y && p.Y < b.Max.Y
}

// Index is a linear-scan region index. Queries are O(n), which is fine for
// the tens of regions it is meant for.
type Index struct {
	mu      sync.RWMutex
	regions []Region
	ids     map[string]int
}

// NewIndex creates an index over regions in insertion order.
func NewIndex(regions ...Region) (*Index, error) {
	ix := &Index{ids: make(map[string]int)}
	for _, r := range regions {
		if err := ix.Add(r); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// FromLayout indexes the placed bounds of every grid cell, one region per
// group, with the group index as ID.
func FromLayout(l *grid.Layout, timepoint uint32) *Index {
	ix := &Index{ids: make(map[string]int, len(l.Cells))}
	for _, c := range l.Cells {
		box := r2.Box{
			Min: r2.Add(c.Bounds.Min, c.Translation),
			Max: r2.Add(c.Bounds.Max, c.Translation),
		}
		id := fmt.Sprint(c.GroupID)
		ix.ids[id] = len(ix.regions)
		ix.regions = append(ix.regions, Region{ID: id, Box: &box, Timepoint: timepoint})
	}
	return ix
}

// Add appends a region. IDs must be unique.
func (ix *Index) Add(r Region) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.ids[r.ID]; ok {
		return fmt.Errorf("region %q already indexed", r.ID)
	}
	if r.Box != nil {
		b := *r.Box
		r.Box = &b
	}
	ix.ids[r.ID] = len(ix.regions)
	ix.regions = append(ix.regions, r)
	return nil
}

// Find returns the first region, in insertion order, containing p.
func (ix *Index) Find(p r2.Vec) (Region, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, r := range ix.regions {
		if r.Contains(p) {
			return r, true
		}
	}
	return Region{}, false
}

// FindAt is Find restricted to one timepoint.
func (ix *Index) FindAt(timepoint uint32, p r2.Vec) (Region, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, r := range ix.regions {
		if r.Timepoint == timepoint && r.Contains(p) {
			return r, true
		}
	}
	return Region{}, false
}

// FindAll returns every region containing p, in insertion order.
func (ix *Index) FindAll(p r2.Vec) []Region {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Region
	for _, r := range ix.regions {
		if r.Contains(p) {
			out = append(out, r)
		}
	}
	return out
}

// Get returns the region with the given ID.
func (ix *Index) Get(id string) (Region, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.ids[id]
	if !ok {
		return Region{}, false
	}
	return ix.regions[i], true
}

// Regions returns all regions for overlay drawing.
func (ix *Index) Regions() []Region {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]Region(nil), ix.regions...)
}

// Len returns the number of regions.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.regions)
}
