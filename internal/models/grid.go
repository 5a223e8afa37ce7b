package models

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// GridPosition is a cell coordinate in the grid, not a pixel coordinate.
type GridPosition struct {
	// Col is the zero-based column index
	Col int

	// Row is the zero-based row index
	Row int
}

// GridCell is one placed group of images
type GridCell struct {
	// GroupID is the index of the group in the layout input
	GroupID int

	// Images holds the names of the images placed together in this cell
	Images []string

	// Position is the cell coordinate assigned to the group
	Position GridPosition

	// Translation is the real-world offset applied to every image in the group
	Translation r2.Vec

	// Bounds is the union of the group's image bounds before translation
	Bounds r2.Box
}
