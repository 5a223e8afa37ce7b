// Package project loads the YAML description of a viewing session: the
// images with their calibrated bounds, how they are grouped on the grid, the
// annotation table and an optional label volume.
package project

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"annoview/internal/models"
	"annoview/pkg/grid"
	"annoview/pkg/visualization"
)

// Image is one image of the project with its real-world bounds.
type Image struct {
	Name string `yaml:"name"`

	// Bounds is minX, minY, maxX, maxY in calibrated units
	Bounds [4]float64 `yaml:"bounds"`
}

// Annotation is one row of the annotation table.
type Annotation struct {
	ID        string            `yaml:"id,omitempty"`
	Source    string            `yaml:"source"`
	Timepoint uint32            `yaml:"timepoint"`
	Label     int64             `yaml:"label"`
	Features  map[string]string `yaml:"features"`
}

// Volume is a small inline label volume.
type Volume struct {
	Source    string  `yaml:"source"`
	Timepoint uint32  `yaml:"timepoint"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Depth     int     `yaml:"depth"`
	Labels    []int64 `yaml:"labels"`
}

// Project is the root of a project file.
type Project struct {
	Images      []Image      `yaml:"images"`
	Groups      [][]string   `yaml:"groups"`
	Positions   [][2]int     `yaml:"positions,omitempty"`
	Annotations []Annotation `yaml:"annotations"`
	Volume      *Volume      `yaml:"volume,omitempty"`
}

// Load reads a project file.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading project file: %w", err)
	}
	p := &Project{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("error parsing project file: %w", err)
	}
	if len(p.Groups) == 0 {
		// One group per image when no grouping is given
		for _, img := range p.Images {
			p.Groups = append(p.Groups, []string{img.Name})
		}
	}
	return p, nil
}

// Bounds returns the image bounds for the grid engine.
func (p *Project) Bounds() grid.BoundsMap {
	m := make(grid.BoundsMap, len(p.Images))
	for _, img := range p.Images {
		b := img.Bounds
		m[img.Name] = grid.Box(b[0], b[1], b[2], b[3])
	}
	return m
}

// GridPositions returns the explicit positions, or nil for automatic
// placement.
func (p *Project) GridPositions() []models.GridPosition {
	if len(p.Positions) == 0 {
		return nil
	}
	out := make([]models.GridPosition, len(p.Positions))
	for i, cr := range p.Positions {
		out[i] = models.GridPosition{Col: cr[0], Row: cr[1]}
	}
	return out
}

// Records converts the annotation table. Values are kept as written;
// numeric columns parse them on demand. Every record gets a label_id column
// like synthetic records have.
func (p *Project) Records() []*models.Record {
	records := make([]*models.Record, 0, len(p.Annotations))
	for _, a := range p.Annotations {
		features := make(map[string]models.FeatureValue, len(a.Features))
		for col, v := range a.Features {
			features[col] = models.StringValue(v)
		}
		if _, ok := features["label_id"]; !ok {
			features["label_id"] = models.IntValue(a.Label)
		}
		key := models.Key{Source: a.Source, Timepoint: a.Timepoint, Label: a.Label}
		records = append(records, models.NewRecord(models.RecordID(a.ID), key, features))
	}
	return records
}

// LabelVolume returns the inline volume, or nil when the project has none.
func (p *Project) LabelVolume() (*visualization.LabelVolume, error) {
	if p.Volume == nil {
		return nil, nil
	}
	v := p.Volume
	return visualization.NewLabelVolume(v.Source, v.Timepoint, v.Labels, v.Width, v.Height, v.Depth)
}
