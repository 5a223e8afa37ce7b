package coloring

import (
	"fmt"
	"image/color"
	"math"
	"strings"
	"sync"

	"annoview/internal/models"
	"annoview/pkg/selection"
)

// SelectionMode decides how selection changes a record's base color.
type SelectionMode int

const (
	// DimNotSelected scales the alpha of unselected records.
	DimNotSelected SelectionMode = iota
	// SelectionColor paints selected records with the selection color.
	SelectionColor
	// SelectionColorAndDimNotSelected does both.
	SelectionColorAndDimNotSelected
)

func (m SelectionMode) String() string {
	switch m {
	case DimNotSelected:
		return "dim-not-selected"
	case SelectionColor:
		return "selection-color"
	case SelectionColorAndDimNotSelected:
		return "selection-color-and-dim-not-selected"
	default:
		return fmt.Sprintf("SelectionMode(%d)", int(m))
	}
}

// ParseSelectionMode accepts the names produced by String.
func ParseSelectionMode(s string) (SelectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dim-not-selected", "":
		return DimNotSelected, nil
	case "selection-color":
		return SelectionColor, nil
	case "selection-color-and-dim-not-selected":
		return SelectionColorAndDimNotSelected, nil
	default:
		return DimNotSelected, fmt.Errorf("unknown selection mode %q", s)
	}
}

// Defaults for SelectionColoring.
var (
	DefaultOpacityNotSelected = 0.15
	DefaultSelectionColor     = color.NRGBA{R: 255, G: 255, B: 0, A: 255}
)

// SelectionColoring applies selection highlighting and the view opacity on
// top of a base model, in the order base color, selection adjustment,
// global opacity. When nothing is selected no selection adjustment is made
// whatever the mode.
type SelectionColoring struct {
	notifier

	base      Model
	selection *selection.State

	mu                 sync.RWMutex
	mode               SelectionMode
	opacityNotSelected float64
	selectionColor     color.NRGBA
	opacity            float64

	unsubscribe []func()
}

// NewSelectionColoring wraps base. Changes of base and of sel are forwarded
// to this model's listeners.
func NewSelectionColoring(base Model, sel *selection.State, mode SelectionMode) *SelectionColoring {
	sc := &SelectionColoring{
		base:               base,
		selection:          sel,
		mode:               mode,
		opacityNotSelected: DefaultOpacityNotSelected,
		selectionColor:     DefaultSelectionColor,
		opacity:            1.0,
	}
	sc.unsubscribe = append(sc.unsubscribe,
		base.OnChange(sc.notify),
		sel.OnChange(func(selection.Event) { sc.notify() }),
	)
	return sc
}

// Close detaches the model from its base and selection.
func (sc *SelectionColoring) Close() {
	for _, fn := range sc.unsubscribe {
		fn()
	}
	sc.unsubscribe = nil
}

// Base returns the wrapped model.
func (sc *SelectionColoring) Base() Model { return sc.base }

// Convert implements Model.
func (sc *SelectionColoring) Convert(r *models.Record) color.NRGBA {
	c := sc.base.Convert(r)

	sc.mu.RLock()
	mode := sc.mode
	dim := sc.opacityNotSelected
	highlight := sc.selectionColor
	opacity := sc.opacity
	sc.mu.RUnlock()

	if !sc.selection.IsEmpty() {
		selected := sc.selection.IsSelected(r)
		switch mode {
		case DimNotSelected:
			if !selected {
				c = scaleAlpha(c, dim)
			}
		case SelectionColor:
			if selected {
				c = highlight
			}
		case SelectionColorAndDimNotSelected:
			if selected {
				c = highlight
			} else {
				c = scaleAlpha(c, dim)
			}
		}
	}

	if opacity != 1.0 {
		c = scaleAlpha(c, opacity)
	}
	return c
}

func scaleAlpha(c color.NRGBA, f float64) color.NRGBA {
	a := math.Round(float64(c.A) * math.Max(0, math.Min(1, f)))
	c.A = uint8(a)
	return c
}

// Mode returns the active selection mode.
func (sc *SelectionColoring) Mode() SelectionMode {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.mode
}

// SetMode changes the selection mode and notifies.
func (sc *SelectionColoring) SetMode(mode SelectionMode) {
	sc.mu.Lock()
	sc.mode = mode
	sc.mu.Unlock()
	sc.notify()
}

// SetOpacityNotSelected changes the alpha factor of unselected records and
// notifies.
func (sc *SelectionColoring) SetOpacityNotSelected(f float64) {
	sc.mu.Lock()
	sc.opacityNotSelected = f
	sc.mu.Unlock()
	sc.notify()
}

// SetSelectionColor changes the highlight color and notifies.
func (sc *SelectionColoring) SetSelectionColor(c color.NRGBA) {
	sc.mu.Lock()
	sc.selectionColor = c
	sc.mu.Unlock()
	sc.notify()
}

// SetOpacity changes the view opacity and notifies.
func (sc *SelectionColoring) SetOpacity(f float64) {
	sc.mu.Lock()
	sc.opacity = f
	sc.mu.Unlock()
	sc.notify()
}
