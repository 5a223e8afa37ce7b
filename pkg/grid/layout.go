package grid

import (
	"gonum.org/v1/gonum/spatial/r2"

	"annoview/internal/models"
)

// Reference is the image anchoring the grid's coordinate frame.
type Reference struct {
	Image string
	Box   r2.Box
}

// Layout is the result of Engine.Layout. It is immutable.
type Layout struct {
	// Cells holds one cell per group, in group order
	Cells []models.GridCell

	// TileSize is the size of every grid cell including margins
	TileSize r2.Vec

	// Reference is the image anchoring the layout
	Reference Reference

	// Origin is the reference image corner less the margin, or zero when groups
	// are centered
	Origin r2.Vec

	tiles   []r2.Box
	byImage map[string]int
}

func newLayout(cells []models.GridCell, tiles []r2.Box, tile r2.Vec, ref Reference, origin r2.Vec) *Layout {
	l := &Layout{
		Cells:     cells,
		tiles:     tiles,
		TileSize:  tile,
		Reference: ref,
		Origin:    origin,
		byImage:   make(map[string]int),
	}
	for i, c := range cells {
		for _, name := range c.Images {
			l.byImage[name] = i
		}
	}
	return l
}

// Translation returns the offset applied to every image of group.
func (l *Layout) Translation(group int) (r2.Vec, bool) {
	if group < 0 || group >= len(l.Cells) {
		return r2.Vec{}, false
	}
	return l.Cells[group].Translation, true
}

// ImageTranslation returns the offset applied to the named image.
func (l *Layout) ImageTranslation(image string) (r2.Vec, bool) {
	i, ok := l.byImage[image]
	if !ok {
		return r2.Vec{}, false
	}
	return l.Cells[i].Translation, true
}

// Transforms returns the translation of every placed image, for the
// transform-application layer.
func (l *Layout) Transforms() map[string]r2.Vec {
	out := make(map[string]r2.Vec, len(l.byImage))
	for name, i := range l.byImage {
		out[name] = l.Cells[i].Translation
	}
	return out
}

// ToGridSpace maps a point of image from its own frame into the grid.
func (l *Layout) ToGridSpace(image string, p r2.Vec) (r2.Vec, bool) {
	t, ok := l.ImageTranslation(image)
	if !ok {
		return r2.Vec{}, false
	}
	return r2.Add(p, t), true
}

// FromGridSpace maps a grid point back into the frame of image, for
// example to find what was clicked.
func (l *Layout) FromGridSpace(image string, p r2.Vec) (r2.Vec, bool) {
	t, ok := l.ImageTranslation(image)
	if !ok {
		return r2.Vec{}, false
	}
	return r2.Sub(p, t), true
}

// CellAt returns the cell whose tile contains the grid-space point p. Tiles
// are half-open; where tiles of differently placed groups overlap the first
// group wins.
func (l *Layout) CellAt(p r2.Vec) (models.GridCell, bool) {
	for i, t := range l.tiles {
		if p.X >= t.Min.X && p.X < t.Max.X && p.Y >= t.Min.Y && p.Y < t.Max.Y {
			return l.Cells[i], true
		}
	}
	return models.GridCell{}, false
}

// Tile returns the grid-space tile of group.
func (l *Layout) Tile(group int) (r2.Box, bool) {
	if group < 0 || group >= len(l.tiles) {
		return r2.Box{}, false
	}
	return l.tiles[group], true
}

// Size returns the extent of the whole grid.
func (l *Layout) Size() r2.Vec {
	var cols, rows int
	for _, c := range l.Cells {
		cols = max(cols, c.Position.Col+1)
		rows = max(rows, c.Position.Row+1)
	}
	return r2.Vec{X: l.TileSize.X * float64(cols), Y: l.TileSize.Y * float64(rows)}
}
