// Package models holds the passive data types shared by the annotation,
// selection, coloring and grid packages.
package models

import (
	"math"
	"sort"
	"strconv"
	"sync"
)

// BackgroundLabel is the label value reserved for unannotated pixels.
// It never resolves to a record.
const BackgroundLabel int64 = 0

// RecordID is the stable identifier of an annotation record. It survives
// sessions and is the only form in which selections are persisted.
type RecordID string

// Key identifies the pixel-space origin of a record: the label observed in
// a given source at a given timepoint.
type Key struct {
	Source    string
	Timepoint uint32
	Label     int64
}

// String returns the key in the "source;timepoint;label" scheme. Record ids
// that are not supplied by a table default to this string.
func (k Key) String() string {
	return k.Source + ";" + strconv.FormatUint(uint64(k.Timepoint), 10) + ";" + strconv.FormatInt(k.Label, 10)
}

// IsBackground reports whether the key refers to the background label.
func (k Key) IsBackground() bool {
	return k.Label == BackgroundLabel
}

// FeatureValue is a scalar cell of an annotation table. It is either a
// string or a number.
type FeatureValue struct {
	str     string
	num     float64
	numeric bool
	text    string // canonical string form
}

// StringValue wraps a string feature value.
func StringValue(s string) FeatureValue {
	return FeatureValue{str: s, text: s}
}

// NumberValue wraps a numeric feature value. The canonical string form keeps
// a fractional part, so 0 renders as "0.0" the way table loaders print
// floating point columns.
func NumberValue(f float64) FeatureValue {
	return FeatureValue{num: f, numeric: true, text: formatFloat(f)}
}

// IntValue wraps an integral feature value such as a label id.
func IntValue(i int64) FeatureValue {
	return FeatureValue{num: float64(i), numeric: true, text: strconv.FormatInt(i, 10)}
}

// IsNumeric reports whether the value holds a number.
func (v FeatureValue) IsNumeric() bool { return v.numeric }

// Float returns the numeric value, parsing string values when possible.
// Unparsable strings yield NaN.
func (v FeatureValue) Float() float64 {
	if v.numeric {
		return v.num
	}
	f, err := strconv.ParseFloat(v.str, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// String returns the canonical string form used for categorical coloring.
func (v FeatureValue) String() string { return v.text }

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		s += ".0"
	}
	return s
}

// Record is one feature-bearing annotation tied to a label in an image at a
// timepoint. Records are created once and mutated in place when a column is
// written, for example by manual annotation.
type Record struct {
	ID        RecordID
	Source    string
	Timepoint uint32
	Label     int64

	mu       sync.RWMutex
	features map[string]FeatureValue
}

// NewRecord creates a record for key. An empty id defaults to key.String().
func NewRecord(id RecordID, key Key, features map[string]FeatureValue) *Record {
	if id == "" {
		id = RecordID(key.String())
	}
	f := make(map[string]FeatureValue, len(features))
	for k, v := range features {
		f[k] = v
	}
	return &Record{
		ID:        id,
		Source:    key.Source,
		Timepoint: key.Timepoint,
		Label:     key.Label,
		features:  f,
	}
}

// Key returns the pixel-space key of the record.
func (r *Record) Key() Key {
	return Key{Source: r.Source, Timepoint: r.Timepoint, Label: r.Label}
}

// Feature returns the value of a column.
func (r *Record) Feature(column string) (FeatureValue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.features[column]
	return v, ok
}

// SetFeature writes a single column in place.
func (r *Record) SetFeature(column string, value FeatureValue) {
	r.mu.Lock()
	r.features[column] = value
	r.mu.Unlock()
}

// Columns returns the record's column names in sorted order.
func (r *Record) Columns() []string {
	r.mu.RLock()
	cols := make([]string, 0, len(r.features))
	for k := range r.features {
		cols = append(cols, k)
	}
	r.mu.RUnlock()
	sort.Strings(cols)
	return cols
}
