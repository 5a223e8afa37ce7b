// Package visualization renders label volumes as colored annotation
// overlays. Each voxel label is resolved to its annotation record and colored
// by the active coloring model.
package visualization

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"annoview/internal/models"
	"annoview/pkg/annotation"
	"annoview/pkg/coloring"
)

// Colorizer answers (source, timepoint, label) -> color.
type Colorizer struct {
	index *annotation.Index
	model coloring.Model
}

// NewColorizer colors records of index with model.
func NewColorizer(index *annotation.Index, model coloring.Model) *Colorizer {
	return &Colorizer{index: index, model: model}
}

// Color returns the overlay color of a voxel label. Background and
// unresolvable labels are transparent.
func (c *Colorizer) Color(source string, timepoint uint32, label int64) color.NRGBA {
	r, ok := c.index.Resolve(source, timepoint, label)
	if !ok {
		return coloring.Transparent
	}
	return c.model.Convert(r)
}

// LabelVolume is a 3D label image of one source at one timepoint, stored
// x-fastest then y then z.
type LabelVolume struct {
	Source    string
	Timepoint uint32

	labels []int64

	width  int
	height int
	depth  int
}

// NewLabelVolume wraps labels without copying them.
func NewLabelVolume(source string, timepoint uint32, labels []int64, width, height, depth int) (*LabelVolume, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("volume dimensions must be positive, got %dx%dx%d", width, height, depth)
	}
	if len(labels) != width*height*depth {
		return nil, fmt.Errorf("expected %d labels for %dx%dx%d, got %d", width*height*depth, width, height, depth, len(labels))
	}
	return &LabelVolume{
		Source:    source,
		Timepoint: timepoint,
		labels:    labels,
		width:     width,
		height:    height,
		depth:     depth,
	}, nil
}

// Dims returns width, height and depth.
func (v *LabelVolume) Dims() (int, int, int) {
	return v.width, v.height, v.depth
}

// LabelAt returns the label at a voxel.
func (v *LabelVolume) LabelAt(x, y, z int) (int64, bool) {
	if x < 0 || y < 0 || z < 0 || x >= v.width || y >= v.height || z >= v.depth {
		return models.BackgroundLabel, false
	}
	return v.labels[z*v.width*v.height+y*v.width+x], true
}

// Viewer renders slices of a label volume through a Colorizer.
type Viewer struct {
	volume    *LabelVolume
	colorizer *Colorizer

	// workers bounds the rows rendered concurrently
	workers int
}

// NewViewer creates a slice viewer.
func NewViewer(volume *LabelVolume, colorizer *Colorizer) *Viewer {
	return &Viewer{
		volume:    volume,
		colorizer: colorizer,
		workers:   runtime.NumCPU(),
	}
}

// SetWorkers bounds rendering concurrency. Values below 1 render serially.
func (v *Viewer) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	v.workers = n
}

// sliceGeometry maps slice pixel (u, w) to a voxel for a given axis.
func (v *Viewer) sliceGeometry(axis string, position int) (int, int, func(u, w int) (int, int, int), error) {
	if position < 0 {
		return 0, 0, nil, fmt.Errorf("position must be non-negative")
	}
	vol := v.volume
	switch axis {
	case "x", "X":
		// YZ plane
		if position >= vol.width {
			return 0, 0, nil, fmt.Errorf("position %d exceeds width %d", position, vol.width)
		}
		return vol.depth, vol.height, func(u, w int) (int, int, int) { return position, w, u }, nil
	case "y", "Y":
		// XZ plane
		if position >= vol.height {
			return 0, 0, nil, fmt.Errorf("position %d exceeds height %d", position, vol.height)
		}
		return vol.width, vol.depth, func(u, w int) (int, int, int) { return u, position, w }, nil
	case "z", "Z":
		// XY plane
		if position >= vol.depth {
			return 0, 0, nil, fmt.Errorf("position %d exceeds depth %d", position, vol.depth)
		}
		return vol.width, vol.height, func(u, w int) (int, int, int) { return u, w, position }, nil
	default:
		return 0, 0, nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// ExtractSlice renders the colored slice at position along axis. Rows are
// rendered concurrently; every voxel lookup goes through the annotation
// index, so lazily created records appear on first render.
func (v *Viewer) ExtractSlice(ctx context.Context, axis string, position int) (*image.NRGBA, error) {
	cols, rows, voxel, err := v.sliceGeometry(axis, position)
	if err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	vol := v.volume

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for w := 0; w < rows; w++ {
		w := w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Labels repeat heavily along a row
			seen := make(map[int64]color.NRGBA)
			for u := 0; u < cols; u++ {
				label, _ := vol.LabelAt(voxel(u, w))
				c, ok := seen[label]
				if !ok {
					c = v.colorizer.Color(vol.Source, vol.Timepoint, label)
					seen[label] = c
				}
				img.SetNRGBA(u, w, c)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return img, nil
}

// RecordsInRegion returns the records of every distinct label inside a box
// of the volume, ordered by label.
func (v *Viewer) RecordsInRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) ([]*models.Record, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	vol := v.volume
	if startX+sizeX > vol.width || startY+sizeY > vol.height || startZ+sizeZ > vol.depth {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	labels := make(map[int64]struct{})
	for z := startZ; z < startZ+sizeZ; z++ {
		for y := startY; y < startY+sizeY; y++ {
			for x := startX; x < startX+sizeX; x++ {
				if l, _ := vol.LabelAt(x, y, z); l != models.BackgroundLabel {
					labels[l] = struct{}{}
				}
			}
		}
	}
	sorted := make([]int64, 0, len(labels))
	for l := range labels {
		sorted = append(sorted, l)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	records := make([]*models.Record, 0, len(sorted))
	for _, l := range sorted {
		if r, ok := v.colorizer.index.Resolve(vol.Source, vol.Timepoint, l); ok {
			records = append(records, r)
		}
	}
	return records, nil
}

// SaveSlice saves a rendered slice as PNG, keeping transparency.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence renders and saves every slice along axis.
func (v *Viewer) SaveSliceSequence(ctx context.Context, axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.volume.width
	case "y", "Y":
		maxPos = v.volume.height
	case "z", "Z":
		maxPos = v.volume.depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(ctx, axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
