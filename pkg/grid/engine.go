// Package grid places groups of independently sized images into a
// non-overlapping, near-square grid. All geometry is in real-world
// (calibrated) units, so the same layout serves interactive viewing and
// reproducible figure generation.
package grid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r2"

	"annoview/internal/logging"
	"annoview/internal/metrics"
	"annoview/internal/models"
)

var (
	// ErrNoGroups is returned when a layout has nothing to place.
	ErrNoGroups = errors.New("grid: no groups")

	// ErrNoReferenceImage is returned when no image of the first group
	// resolves, so no reference geometry exists.
	ErrNoReferenceImage = errors.New("grid: no image of the first group resolves")

	// ErrEmptyGroup is returned when none of a group's images resolve.
	ErrEmptyGroup = errors.New("grid: group has no resolvable image")

	// ErrPositionCount is returned when explicit positions do not match the
	// number of groups.
	ErrPositionCount = errors.New("grid: position count does not match group count")

	// ErrDuplicatePosition is returned when two groups share a cell.
	ErrDuplicatePosition = errors.New("grid: duplicate grid position")

	// ErrDuplicateImage is returned when an image appears more than once.
	ErrDuplicateImage = errors.New("grid: image placed twice")
)

// DefaultMargin is the tile margin as a fraction of the largest group size.
const DefaultMargin = 0.1

// Options configures an Engine.
type Options struct {
	// Margin expands the tile size by (1 + 2*Margin).
	Margin float64

	// CenterAtOrigin centers each group's bounding box in its tile.
	CenterAtOrigin bool

	// Workers bounds the per-group worker pool. Values below 1 use the
	// number of CPUs.
	Workers int

	// Positions optionally fixes the cell of every group. When empty,
	// positions are filled row-major into a near-square grid.
	Positions []models.GridPosition

	Metrics *metrics.Metrics
}

// DefaultOptions returns the options used by the viewer.
func DefaultOptions() Options {
	return Options{
		Margin:         DefaultMargin,
		CenterAtOrigin: true,
		Workers:        runtime.NumCPU(),
	}
}

// Engine computes the layout of one fixed set of groups. The mapping from
// group to position is decided at construction and never changes;
// recomputing with other positions needs a new Engine.
type Engine struct {
	groups    [][]string
	bounds    BoundsProvider
	opts      Options
	positions []models.GridPosition
}

// NewEngine validates groups and positions.
func NewEngine(groups [][]string, bounds BoundsProvider, opts Options) (*Engine, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}

	seen := make(map[string]int)
	for g, images := range groups {
		for _, name := range images {
			if prev, ok := seen[name]; ok {
				return nil, fmt.Errorf("%s in groups %d and %d: %w", name, prev, g, ErrDuplicateImage)
			}
			seen[name] = g
		}
	}

	positions := opts.Positions
	if len(positions) == 0 {
		positions = CreateGridPositions(len(groups))
	} else {
		if len(positions) != len(groups) {
			return nil, fmt.Errorf("%d positions for %d groups: %w", len(positions), len(groups), ErrPositionCount)
		}
		used := make(map[models.GridPosition]int, len(positions))
		for g, p := range positions {
			if prev, ok := used[p]; ok {
				return nil, fmt.Errorf("(%d,%d) for groups %d and %d: %w", p.Col, p.Row, prev, g, ErrDuplicatePosition)
			}
			used[p] = g
		}
		positions = append([]models.GridPosition(nil), positions...)
	}

	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Margin < 0 {
		opts.Margin = 0
	}

	owned := make([][]string, len(groups))
	for i, g := range groups {
		owned[i] = append([]string(nil), g...)
	}

	return &Engine{
		groups:    owned,
		bounds:    bounds,
		opts:      opts,
		positions: positions,
	}, nil
}

// CreateGridPositions fills numGroups cells row-major into a grid of
// ceil(sqrt(numGroups)) columns. The last row may be partial.
func CreateGridPositions(numGroups int) []models.GridPosition {
	if numGroups <= 0 {
		return nil
	}
	numColumns := int(math.Ceil(math.Sqrt(float64(numGroups))))
	positions := make([]models.GridPosition, 0, numGroups)
	col, row := 0, 0
	for i := 0; i < numGroups; i++ {
		positions = append(positions, models.GridPosition{Col: col, Row: row})
		col++
		if col == numColumns {
			col = 0
			row++
		}
	}
	return positions
}

// Positions returns the cell of every group.
func (e *Engine) Positions() []models.GridPosition {
	return append([]models.GridPosition(nil), e.positions...)
}

// groupBounds is the result of resolving one group.
type groupBounds struct {
	box    r2.Box
	images []string
}

// Layout computes the tile size and every group's translation. Work per
// group runs on a bounded pool; the first failing group aborts the layout
// and nothing is returned for the others.
func (e *Engine) Layout(ctx context.Context) (*Layout, error) {
	layout, err := e.layout(ctx)
	if err != nil {
		e.opts.Metrics.Inc(func(m *metrics.Metrics) prometheus.Counter { return m.LayoutFailures })
		return nil, err
	}
	e.opts.Metrics.Inc(func(m *metrics.Metrics) prometheus.Counter { return m.Layouts })
	return layout, nil
}

func (e *Engine) layout(ctx context.Context) (*Layout, error) {
	reference, err := e.findReference()
	if err != nil {
		return nil, err
	}

	// Resolve and union every group's bounds
	resolved := make([]groupBounds, len(e.groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range e.groups {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			gb, err := e.resolveGroup(i)
			if err != nil {
				return err
			}
			resolved[i] = gb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Tile size from the largest group along each axis
	var maxSize r2.Vec
	for _, gb := range resolved {
		size := boxSize(gb.box)
		maxSize.X = math.Max(maxSize.X, size.X)
		maxSize.Y = math.Max(maxSize.Y, size.Y)
	}
	tile := r2.Scale(1+2*e.opts.Margin, maxSize)

	// Translate each group into its cell
	cells := make([]models.GridCell, len(e.groups))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range e.groups {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cells[i] = e.placeGroup(i, resolved[i], tile)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var origin r2.Vec
	if !e.opts.CenterAtOrigin {
		origin = r2.Sub(reference.Box.Min, r2.Scale(e.opts.Margin, maxSize))
	}
	tiles := make([]r2.Box, len(cells))
	for i, c := range cells {
		tiles[i] = e.tileBox(c, tile, maxSize)
	}
	return newLayout(cells, tiles, tile, reference, origin), nil
}

// tileBox returns the grid-space tile a placed group occupies. Without
// centering each group keeps its own minimum corner, so tiles of groups with
// different bounds do not share one origin.
func (e *Engine) tileBox(c models.GridCell, tile, maxSize r2.Vec) r2.Box {
	var lo r2.Vec
	if e.opts.CenterAtOrigin {
		lo = r2.Vec{X: tile.X * float64(c.Position.Col), Y: tile.Y * float64(c.Position.Row)}
	} else {
		lo = r2.Sub(r2.Add(c.Bounds.Min, c.Translation), r2.Scale(e.opts.Margin, maxSize))
	}
	return r2.Box{Min: lo, Max: r2.Add(lo, tile)}
}

// findReference returns the first resolvable image of the first group.
// Missing images are tolerated, other provider errors are not.
func (e *Engine) findReference() (Reference, error) {
	for _, name := range e.groups[0] {
		box, err := e.bounds.Bounds(name)
		if errors.Is(err, ErrImageNotFound) {
			logging.Diagf("reference candidate %s not found, trying next", name)
			continue
		}
		if err != nil {
			return Reference{}, fmt.Errorf("reference image %s: %w", name, err)
		}
		if !validBox(box) {
			return Reference{}, fmt.Errorf("reference image %s: %w", name, ErrInvalidBounds)
		}
		return Reference{Image: name, Box: box}, nil
	}
	return Reference{}, ErrNoReferenceImage
}

func (e *Engine) resolveGroup(i int) (groupBounds, error) {
	boxes := make([]r2.Box, 0, len(e.groups[i]))
	images := make([]string, 0, len(e.groups[i]))
	for _, name := range e.groups[i] {
		box, err := e.bounds.Bounds(name)
		if errors.Is(err, ErrImageNotFound) {
			logging.Diagf("group %d: image %s not found, skipping", i, name)
			continue
		}
		if err != nil {
			return groupBounds{}, fmt.Errorf("group %d image %s: %w", i, name, err)
		}
		if !validBox(box) {
			return groupBounds{}, fmt.Errorf("group %d image %s: %w", i, name, ErrInvalidBounds)
		}
		boxes = append(boxes, box)
		images = append(images, name)
	}
	if len(boxes) == 0 {
		return groupBounds{}, fmt.Errorf("group %d: %w", i, ErrEmptyGroup)
	}
	return groupBounds{box: unionBounds(boxes), images: images}, nil
}

func (e *Engine) placeGroup(i int, gb groupBounds, tile r2.Vec) models.GridCell {
	pos := e.positions[i]
	var offset r2.Vec
	if e.opts.CenterAtOrigin {
		size := boxSize(gb.box)
		offset = r2.Sub(r2.Scale(0.5, r2.Sub(tile, size)), gb.box.Min)
	}
	translation := r2.Vec{
		X: tile.X*float64(pos.Col) + offset.X,
		Y: tile.Y*float64(pos.Row) + offset.Y,
	}
	return models.GridCell{
		GroupID:     i,
		Images:      gb.images,
		Position:    pos,
		Translation: translation,
		Bounds:      gb.box,
	}
}
