package coloring

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// LUT maps a normalized scalar in [0,1) to a color.
type LUT interface {
	At(h float64) color.NRGBA
	Name() string
}

// Transparent is the color of background and unannotated pixels.
var Transparent = color.NRGBA{}

// toNRGBA converts a go-colorful color to an opaque NRGBA.
func toNRGBA(c colorful.Color) color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// wrap folds h into [0,1).
func wrap(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	h -= math.Floor(h)
	if h >= 1 {
		h = 0
	}
	return h
}

// ListLUT samples a fixed list of colors by floor(h*n).
type ListLUT struct {
	name   string
	colors []color.NRGBA
}

// NewListLUT creates a LUT over an explicit list of colors.
func NewListLUT(name string, colors []color.NRGBA) *ListLUT {
	c := make([]color.NRGBA, len(colors))
	copy(c, colors)
	return &ListLUT{name: name, colors: c}
}

// At implements LUT.
func (l *ListLUT) At(h float64) color.NRGBA {
	if len(l.colors) == 0 {
		return Transparent
	}
	i := int(wrap(h) * float64(len(l.colors)))
	if i >= len(l.colors) {
		i = len(l.colors) - 1
	}
	return l.colors[i]
}

// Name implements LUT.
func (l *ListLUT) Name() string { return l.name }

// Len returns the number of colors in the list.
func (l *ListLUT) Len() int { return len(l.colors) }

// NewGlasbeyLUT generates a categorical palette of n well separated colors.
// Hues advance by the golden angle and lightness cycles through three
// bands so neighbouring entries differ in both hue and brightness.
func NewGlasbeyLUT(n int) *ListLUT {
	if n <= 0 {
		n = 256
	}
	const goldenAngle = 137.50776405003785
	lightness := []float64{0.75, 0.55, 0.65}
	colors := make([]color.NRGBA, n)
	for i := 0; i < n; i++ {
		hue := math.Mod(float64(i)*goldenAngle, 360)
		c := colorful.Hcl(hue, 0.6, lightness[i%len(lightness)])
		colors[i] = toNRGBA(c)
	}
	return NewListLUT("glasbey", colors)
}

// HSVWheelLUT walks the hue circle at fixed saturation and value.
type HSVWheelLUT struct {
	Saturation float64
	Value      float64
}

// NewHSVWheelLUT returns the hue wheel used for random categorical colors.
func NewHSVWheelLUT() *HSVWheelLUT {
	return &HSVWheelLUT{Saturation: 0.85, Value: 1.0}
}

// At implements LUT.
func (l *HSVWheelLUT) At(h float64) color.NRGBA {
	return toNRGBA(colorful.Hsv(wrap(h)*360, l.Saturation, l.Value))
}

// Name implements LUT.
func (l *HSVWheelLUT) Name() string { return "hsv" }

// GradientLUT blends linearly between color stops in HCL space. Unlike the
// categorical LUTs it accepts h == 1, which maps to the last stop.
type GradientLUT struct {
	name  string
	stops []colorful.Color
}

// NewGradientLUT parses hex stops such as "#000080" into a gradient.
func NewGradientLUT(name string, hexStops ...string) (*GradientLUT, error) {
	if len(hexStops) < 2 {
		return nil, fmt.Errorf("gradient %q needs at least two stops", name)
	}
	stops := make([]colorful.Color, len(hexStops))
	for i, s := range hexStops {
		c, err := colorful.Hex(s)
		if err != nil {
			return nil, fmt.Errorf("gradient %q stop %d: %w", name, i, err)
		}
		stops[i] = c
	}
	return &GradientLUT{name: name, stops: stops}, nil
}

// At implements LUT.
func (l *GradientLUT) At(h float64) color.NRGBA {
	if math.IsNaN(h) {
		return Transparent
	}
	h = math.Max(0, math.Min(1, h))
	segments := float64(len(l.stops) - 1)
	pos := h * segments
	i := int(pos)
	if i >= len(l.stops)-1 {
		return toNRGBA(l.stops[len(l.stops)-1])
	}
	frac := pos - float64(i)
	if frac == 0 {
		return toNRGBA(l.stops[i])
	}
	return toNRGBA(l.stops[i].BlendHcl(l.stops[i+1], frac))
}

// Name implements LUT.
func (l *GradientLUT) Name() string { return l.name }

// Built-in LUT names accepted by LUTByName.
const (
	LUTGlasbey = "glasbey"
	LUTHSV     = "hsv"
	LUTViridis = "viridis"
	LUTBlueRed = "blue-white-red"
)

// LUTByName returns a built-in LUT.
func LUTByName(name string) (LUT, error) {
	switch name {
	case LUTGlasbey, "":
		return NewGlasbeyLUT(256), nil
	case LUTHSV:
		return NewHSVWheelLUT(), nil
	case LUTViridis:
		return NewGradientLUT(LUTViridis, "#440154", "#3b528b", "#21918c", "#5ec962", "#fde725")
	case LUTBlueRed:
		return NewGradientLUT(LUTBlueRed, "#2166ac", "#f7f7f7", "#b2182b")
	default:
		return nil, fmt.Errorf("unknown lut %q", name)
	}
}
