package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrImageNotFound is returned by a BoundsProvider for images it does
	// not know, for example images living in another display layer.
	ErrImageNotFound = errors.New("grid: image not found")

	// ErrInvalidBounds is returned for boxes whose Max is below Min.
	ErrInvalidBounds = errors.New("grid: invalid bounds")
)

// BoundsProvider supplies the real-world bounding box of an image. It is
// implemented by the image metadata layer.
type BoundsProvider interface {
	Bounds(image string) (r2.Box, error)
}

// BoundsMap is a BoundsProvider over a fixed map.
type BoundsMap map[string]r2.Box

// Bounds implements BoundsProvider.
func (m BoundsMap) Bounds(image string) (r2.Box, error) {
	b, ok := m[image]
	if !ok {
		return r2.Box{}, fmt.Errorf("%s: %w", image, ErrImageNotFound)
	}
	return b, nil
}

// Box builds an r2.Box from corner coordinates.
func Box(minX, minY, maxX, maxY float64) r2.Box {
	return r2.Box{Min: r2.Vec{X: minX, Y: minY}, Max: r2.Vec{X: maxX, Y: maxY}}
}

func validBox(b r2.Box) bool {
	for _, v := range []float64{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Max.X >= b.Min.X && b.Max.Y >= b.Min.Y
}

func boxSize(b r2.Box) r2.Vec {
	return r2.Sub(b.Max, b.Min)
}

// boundingUnion is the general union of boxes: the axis-aligned box
// enclosing all of them.
func boundingUnion(boxes []r2.Box) r2.Box {
	u := boxes[0]
	for _, b := range boxes[1:] {
		u.Min.X = math.Min(u.Min.X, b.Min.X)
		u.Min.Y = math.Min(u.Min.Y, b.Min.Y)
		u.Max.X = math.Max(u.Max.X, b.Max.X)
		u.Max.Y = math.Max(u.Max.Y, b.Max.Y)
	}
	return u
}

// generalUnion is swapped by tests to observe the identical-box shortcut.
var generalUnion = boundingUnion

// unionBounds returns the union of boxes. When every box is identical, as is
// common for multi-channel images of one region, the shared box is returned
// without invoking the general union.
func unionBounds(boxes []r2.Box) r2.Box {
	first := boxes[0]
	for _, b := range boxes[1:] {
		if b != first {
			return generalUnion(boxes)
		}
	}
	return first
}
