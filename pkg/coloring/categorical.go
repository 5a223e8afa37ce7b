package coloring

import (
	"fmt"
	"image/color"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"annoview/internal/logging"
	"annoview/internal/metrics"
	"annoview/internal/models"
)

// DefaultSeed is the random seed of a new categorical model.
const DefaultSeed = 50.0

// DefaultCacheSize bounds the memo of hash-derived colors.
const DefaultCacheSize = 1 << 16

// CategoricalOptions configures a Categorical model.
type CategoricalOptions struct {
	// LUT samples category positions. Defaults to the glasbey palette.
	LUT LUT

	// Seed scales the category hash. Defaults to DefaultSeed.
	Seed float64

	// EncodedColors marks the column as holding "r{R}-g{G}-b{B}-a{A}" values
	// that are used directly.
	EncodedColors bool

	// CacheSize bounds the hash memo. Defaults to DefaultCacheSize.
	CacheSize int

	Metrics     *metrics.Metrics
	Diagnostics *logging.Once
}

// Categorical colors records by the string value of one column.
type Categorical struct {
	notifier

	column  string
	encoded bool

	mu    sync.RWMutex
	lut   LUT
	seed  float64
	fixed map[string]color.NRGBA

	// random memoizes hash-derived colors. It is purged wholesale whenever
	// the seed or LUT changes.
	random *lru.Cache[string, color.NRGBA]

	metrics     *metrics.Metrics
	diagnostics *logging.Once
}

// NewCategorical creates a categorical model for column.
func NewCategorical(column string, opts CategoricalOptions) (*Categorical, error) {
	if opts.LUT == nil {
		opts.LUT = NewGlasbeyLUT(256)
	}
	if opts.Seed == 0 {
		opts.Seed = DefaultSeed
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = logging.NewOnce()
	}
	cache, err := lru.New[string, color.NRGBA](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create color cache: %w", err)
	}

	fixed := make(map[string]color.NRGBA, len(TransparentValues))
	for _, v := range TransparentValues {
		fixed[v] = Transparent
	}

	return &Categorical{
		column:      column,
		encoded:     opts.EncodedColors,
		lut:         opts.LUT,
		seed:        opts.Seed,
		fixed:       fixed,
		random:      cache,
		metrics:     opts.Metrics,
		diagnostics: opts.Diagnostics,
	}, nil
}

// Column returns the column the model reads.
func (c *Categorical) Column() string { return c.column }

// Convert returns the color of r. A record without the column is treated as
// holding "None".
func (c *Categorical) Convert(r *models.Record) color.NRGBA {
	if r == nil {
		return Transparent
	}
	v, ok := r.Feature(c.column)
	if !ok {
		return c.ConvertValue("None")
	}
	return c.ConvertValue(v.String())
}

// ConvertValue returns the color of a categorical value.
func (c *Categorical) ConvertValue(value string) color.NRGBA {
	c.mu.RLock()
	if col, ok := c.fixed[value]; ok {
		c.mu.RUnlock()
		return col
	}
	if col, ok := c.random.Get(value); ok {
		c.mu.RUnlock()
		return col
	}
	if !c.encoded {
		col := c.lut.At(CategoryHue(value, c.seed))
		c.random.Add(value, col)
		c.mu.RUnlock()
		return col
	}
	c.mu.RUnlock()
	return c.decode(value)
}

// decode parses an encoded value into the fixed map, or falls back to the
// hash policy when the value is not a color.
func (c *Categorical) decode(value string) color.NRGBA {
	parsed, err := ParseRGBA(value)

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.fixed[value]; ok {
		return col
	}
	if err == nil {
		c.fixed[value] = parsed
		return parsed
	}

	c.metrics.Inc(func(m *metrics.Metrics) prometheus.Counter { return m.ColorParseErrors })
	c.diagnostics.Printf("color:"+c.column+":"+value, "column %s: %v; using categorical color", c.column, err)
	col := c.lut.At(CategoryHue(value, c.seed))
	c.random.Add(value, col)
	return col
}

// Seed returns the current random seed.
func (c *Categorical) Seed() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seed
}

// SetSeed changes the seed, drops every memoized hash color and notifies.
func (c *Categorical) SetSeed(seed float64) {
	c.mu.Lock()
	c.seed = seed
	c.random.Purge()
	c.mu.Unlock()
	c.notify()
}

// SetLUT replaces the LUT, drops every memoized hash color and notifies.
func (c *Categorical) SetLUT(lut LUT) {
	c.mu.Lock()
	c.lut = lut
	c.random.Purge()
	c.mu.Unlock()
	c.notify()
}

// LUT returns the active LUT.
func (c *Categorical) LUT() LUT {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lut
}

// AssignColor adds fixed colors for values and notifies once. Batch several
// assignments into one call to avoid repeated repaints.
func (c *Categorical) AssignColor(colors map[string]color.NRGBA) {
	if len(colors) == 0 {
		return
	}
	c.mu.Lock()
	for value, col := range colors {
		c.fixed[value] = col
		c.random.Remove(value)
	}
	c.mu.Unlock()
	c.notify()
}

// FixedColor returns the fixed color assigned to value, if any.
func (c *Categorical) FixedColor(value string) (color.NRGBA, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.fixed[value]
	return col, ok
}
