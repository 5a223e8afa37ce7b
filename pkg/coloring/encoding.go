package coloring

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrBadColor is returned for values that are not an encoded color.
var ErrBadColor = errors.New("coloring: not an encoded color")

// goldenRatio is the conjugate golden ratio (sqrt(5)-1)/2.
var goldenRatio = (math.Sqrt(5) - 1) / 2

// stringHash is the 31-polynomial hash over UTF-16 code units, as a signed
// 32-bit integer. Category colors saved by earlier sessions depend on it, so
// it must never change.
func stringHash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(c)
	}
	return h
}

// CategoryHue returns the fractional LUT position for a categorical value
// under seed.
func CategoryHue(value string, seed float64) float64 {
	h := float64(stringHash(value)) * seed * goldenRatio
	return h - math.Floor(h)
}

// EncodeRGBA formats c as "r{R}-g{G}-b{B}-a{A}".
func EncodeRGBA(c color.NRGBA) string {
	return fmt.Sprintf("r%d-g%d-b%d-a%d", c.R, c.G, c.B, c.A)
}

// ParseRGBA decodes "r{R}-g{G}-b{B}-a{A}", "#RRGGBB" or "#RRGGBBAA".
func ParseRGBA(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return parseHex(s)
	}

	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("%q: %w", s, ErrBadColor)
	}
	var ch [4]uint8
	for i, prefix := range []string{"r", "g", "b", "a"} {
		p := parts[i]
		if !strings.HasPrefix(p, prefix) {
			return color.NRGBA{}, fmt.Errorf("%q: component %d: %w", s, i, ErrBadColor)
		}
		v, err := strconv.ParseUint(p[len(prefix):], 10, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("%q: component %d: %w", s, i, ErrBadColor)
		}
		ch[i] = uint8(v)
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
}

func parseHex(s string) (color.NRGBA, error) {
	alpha := uint8(255)
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("%q: alpha: %w", s, ErrBadColor)
		}
		alpha = uint8(a)
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%q: %w", s, ErrBadColor)
	}
	out := toNRGBA(c)
	out.A = alpha
	return out, nil
}
