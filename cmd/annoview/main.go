package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"annoview/internal/logging"
	"annoview/internal/metrics"
	"annoview/internal/models"
	"annoview/internal/project"
	"annoview/pkg/annotation"
	"annoview/pkg/bookmark"
	"annoview/pkg/coloring"
	"annoview/pkg/config"
	"annoview/pkg/grid"
	"annoview/pkg/region"
	"annoview/pkg/selection"
	"annoview/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "annoview.yaml", "Configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	projectPath := flag.String("project", "", "Project file describing images, groups and annotations")
	workers := flag.Int("workers", 0, "Grid worker pool size (default: from config)")
	column := flag.String("column", "label_id", "Annotation column used for coloring")
	numeric := flag.Bool("numeric", false, "Color the column as a continuous value instead of categories")
	selectLabels := flag.String("select", "", "Comma separated labels of the volume source to select")
	slicesDir := flag.String("slices-dir", "", "Render colored volume slices into this directory")
	saveBookmark := flag.String("save-bookmark", "", "Save the selection as a bookmark with this name")
	restoreBookmark := flag.String("restore-bookmark", "", "Restore the selection from the bookmark with this id")
	listBookmarks := flag.Bool("list-bookmarks", false, "List saved bookmarks")
	exportBookmarks := flag.String("export-bookmarks", "", "Export all bookmarks to a YAML file")
	showMetrics := flag.Bool("metrics", false, "Print counters before exiting")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *workers > 0 {
		cfg.Grid.Workers = *workers
	}
	if cfg.Annotation.Diagnostics {
		logging.SetWriters(logging.Writers{Ops: os.Stderr, Diag: os.Stderr})
	}

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store, err := bookmark.Open(cfg.Bookmarks.Path)
	if err != nil {
		log.Fatalf("Failed to open bookmarks: %v", err)
	}
	defer store.Close()

	if *listBookmarks || *exportBookmarks != "" {
		if err := runBookmarks(ctx, store, *listBookmarks, *exportBookmarks); err != nil {
			log.Fatalf("Bookmark command failed: %v", err)
		}
		if *projectPath == "" {
			return
		}
	}

	if *projectPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	proj, err := project.Load(*projectPath)
	if err != nil {
		log.Fatalf("Failed to load project: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("ANNOVIEW GRID LAYOUT")
	fmt.Println("================================")

	// Lay out the image groups
	opts := grid.Options{
		Margin:         cfg.Grid.Margin,
		CenterAtOrigin: cfg.Grid.CenterAtOrigin,
		Workers:        cfg.Grid.Workers,
		Positions:      proj.GridPositions(),
		Metrics:        m,
	}
	engine, err := grid.NewEngine(proj.Groups, proj.Bounds(), opts)
	if err != nil {
		log.Fatalf("Invalid grid: %v", err)
	}
	startTime := time.Now()
	layout, err := engine.Layout(ctx)
	if err != nil {
		log.Fatalf("Layout failed: %v", err)
	}
	printLayout(layout, time.Since(startTime))

	overlays := region.FromLayout(layout, 0)
	fmt.Printf("Overlay regions: %d\n", overlays.Len())

	// Annotation index, selection and coloring
	diagnostics := logging.NewOnce()
	ixOpts := annotation.Options{Metrics: m, Diagnostics: diagnostics}
	var index *annotation.Index
	if cfg.Annotation.Lazy {
		index = annotation.NewLazyIndex(nil, ixOpts)
	} else {
		index = annotation.NewTableIndex(proj.Records(), ixOpts)
	}
	fmt.Printf("\nAnnotations: %d table records (lazy=%v)\n", index.Len(), index.IsLazy())

	sel := selection.NewState(m)
	registry := coloring.NewRegistry()
	base, err := registry.GetOrCreate(*column, func() (coloring.Model, error) {
		return newModel(cfg, *column, *numeric, index, m, diagnostics)
	})
	if err != nil {
		log.Fatalf("Failed to create coloring model: %v", err)
	}
	styled, err := newSelectionColoring(cfg, base, sel)
	if err != nil {
		log.Fatalf("Invalid selection settings: %v", err)
	}
	defer styled.Close()

	vol, err := proj.LabelVolume()
	if err != nil {
		log.Fatalf("Invalid label volume: %v", err)
	}

	if *restoreBookmark != "" {
		b, err := store.Get(ctx, *restoreBookmark)
		if err != nil {
			log.Fatalf("Failed to restore bookmark: %v", err)
		}
		b.Apply(sel)
		fmt.Printf("Restored bookmark %q (%d records)\n", b.Name, len(b.Selected))
	}

	if *selectLabels != "" {
		if vol == nil {
			log.Fatalf("-select needs a project volume to name the label source")
		}
		records, err := resolveLabels(index, vol, *selectLabels)
		if err != nil {
			log.Fatalf("Invalid selection: %v", err)
		}
		sel.SetSelected(records, true)
	}
	fmt.Printf("Selected records: %d\n", sel.Len())

	if *saveBookmark != "" {
		b := bookmark.FromState(*saveBookmark, sel)
		if err := store.Insert(ctx, b); err != nil {
			log.Fatalf("Failed to save bookmark: %v", err)
		}
		fmt.Printf("Saved bookmark %s (%s)\n", b.ID, b.Name)
	}

	// Render colored slices if requested
	if *slicesDir != "" {
		if vol == nil {
			log.Fatalf("-slices-dir needs a project volume")
		}
		viewer := visualization.NewViewer(vol, visualization.NewColorizer(index, styled))
		viewer.SetWorkers(cfg.Grid.Workers)
		fmt.Println("\nRendering colored slices along all axes...")
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(*slicesDir, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)
			if err := viewer.SaveSliceSequence(ctx, axis, axisDir); err != nil {
				log.Printf("Warning: Failed to save %s-axis slices: %v", axis, err)
			}
		}
	}

	if *showMetrics {
		printMetrics(reg)
	}
}

func newModel(cfg *config.Config, column string, numeric bool, index *annotation.Index, m *metrics.Metrics, diag *logging.Once) (coloring.Model, error) {
	lut, err := coloring.LUTByName(cfg.Coloring.LUT)
	if err != nil {
		return nil, err
	}
	if numeric {
		return coloring.NewColumnValue(column, lut, index.Records()), nil
	}
	return coloring.NewCategorical(column, coloring.CategoricalOptions{
		LUT:           lut,
		Seed:          cfg.Coloring.Seed,
		EncodedColors: slices.Contains(cfg.Coloring.RGBAColumns, column),
		CacheSize:     cfg.Coloring.CacheSize,
		Metrics:       m,
		Diagnostics:   diag,
	})
}

func newSelectionColoring(cfg *config.Config, base coloring.Model, sel *selection.State) (*coloring.SelectionColoring, error) {
	mode, err := coloring.ParseSelectionMode(cfg.Coloring.Mode)
	if err != nil {
		return nil, err
	}
	selColor, err := coloring.ParseRGBA(cfg.Coloring.SelectionColor)
	if err != nil {
		return nil, err
	}
	sc := coloring.NewSelectionColoring(base, sel, mode)
	sc.SetOpacityNotSelected(cfg.Coloring.OpacityNotSelected)
	sc.SetSelectionColor(selColor)
	sc.SetOpacity(cfg.View.Opacity)
	return sc, nil
}

func resolveLabels(index *annotation.Index, vol *visualization.LabelVolume, list string) ([]*models.Record, error) {
	var records []*models.Record
	for _, field := range strings.Split(list, ",") {
		label, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", field, err)
		}
		r, ok := index.Resolve(vol.Source, vol.Timepoint, label)
		if !ok {
			logging.Opsf("label %d has no annotation, not selected", label)
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func runBookmarks(ctx context.Context, store *bookmark.Store, list bool, exportPath string) error {
	all, err := store.List(ctx)
	if err != nil {
		return err
	}
	if list {
		fmt.Printf("Bookmarks (%d):\n", len(all))
		for _, b := range all {
			fmt.Printf("- %s  %-20s %d records  %s\n", b.ID, b.Name, len(b.Selected), b.CreatedAt.Format(time.RFC3339))
		}
	}
	if exportPath != "" {
		if err := bookmark.ExportFile(exportPath, all); err != nil {
			return err
		}
		fmt.Printf("Exported %d bookmarks to %s\n", len(all), exportPath)
	}
	return nil
}

func printLayout(l *grid.Layout, elapsed time.Duration) {
	size := l.Size()
	fmt.Printf("Reference image: %s\n", l.Reference.Image)
	fmt.Printf("Tile size: %.3f x %.3f\n", l.TileSize.X, l.TileSize.Y)
	fmt.Printf("Grid size: %.3f x %.3f\n", size.X, size.Y)
	fmt.Printf("Computed in %s\n\n", elapsed)
	for _, c := range l.Cells {
		fmt.Printf("group %d  cell (%d,%d)  translation (%.3f, %.3f)  images %s\n",
			c.GroupID, c.Position.Col, c.Position.Row, c.Translation.X, c.Translation.Y, strings.Join(c.Images, ", "))
	}
}

func printMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Printf("Warning: Failed to gather metrics: %v", err)
		return
	}
	fmt.Println("\nCounters:")
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			fmt.Printf("- %s: %.0f\n", f.GetName(), metric.GetCounter().GetValue())
		}
	}
}
