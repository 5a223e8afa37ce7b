package coloring

import (
	"image/color"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"annoview/internal/models"
)

// ColumnValue maps a numeric column onto a continuous LUT over [min,max].
// Missing and non-finite values render transparent, as does zero, which
// follows the same "0"/"0.0" convention as categorical columns.
type ColumnValue struct {
	notifier

	column string

	mu       sync.RWMutex
	lut      LUT
	min, max float64
}

// NewColumnValue creates a column-value model whose range is derived from
// the finite values of column across records.
func NewColumnValue(column string, lut LUT, records []*models.Record) *ColumnValue {
	m := &ColumnValue{column: column, lut: lut}
	m.min, m.max = ColumnRange(column, records)
	return m
}

// ColumnRange returns the minimum and maximum finite value of column over
// records, or (0, 1) when there are none.
func ColumnRange(column string, records []*models.Record) (float64, float64) {
	values := make([]float64, 0, len(records))
	for _, r := range records {
		v, ok := r.Feature(column)
		if !ok {
			continue
		}
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		values = append(values, f)
	}
	if len(values) == 0 {
		return 0, 1
	}
	return floats.Min(values), floats.Max(values)
}

// Convert implements Model.
func (m *ColumnValue) Convert(r *models.Record) color.NRGBA {
	if r == nil {
		return Transparent
	}
	v, ok := r.Feature(m.column)
	if !ok {
		return Transparent
	}
	return m.ConvertValue(v.Float())
}

// ConvertValue maps a raw column value to a color.
func (m *ColumnValue) ConvertValue(f float64) color.NRGBA {
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return Transparent
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := 0.0
	if m.max > m.min {
		t = (f - m.min) / (m.max - m.min)
	}
	t = math.Max(0, math.Min(1, t))
	return m.lut.At(t)
}

// Range returns the current value range.
func (m *ColumnValue) Range() (float64, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.min, m.max
}

// SetRange changes the value range and notifies.
func (m *ColumnValue) SetRange(lo, hi float64) {
	m.mu.Lock()
	m.min, m.max = lo, hi
	m.mu.Unlock()
	m.notify()
}

// SetLUT replaces the LUT and notifies.
func (m *ColumnValue) SetLUT(lut LUT) {
	m.mu.Lock()
	m.lut = lut
	m.mu.Unlock()
	m.notify()
}
