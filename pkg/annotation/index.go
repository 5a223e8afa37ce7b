// Package annotation resolves label values observed at a pixel to the
// annotation records that describe them, and stable record ids back to
// records.
//
// An Index is either table-backed, built once from an exhaustive set of
// records, or lazy, fabricating a synthetic record the first time a label is
// looked up. Lookups are safe for unbounded concurrent readers.
package annotation

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"annoview/internal/logging"
	"annoview/internal/metrics"
	"annoview/internal/models"
)

// ErrUnknownRecord is returned when an id does not resolve to a record.
var ErrUnknownRecord = errors.New("annotation: unknown record")

// SyntheticFactory fabricates a record for a label that has no table row.
// It is called at most once per key. Returning nil leaves the key
// unannotated.
type SyntheticFactory func(key models.Key) *models.Record

// FeatureListener is notified after a column of a record was written.
type FeatureListener func(record *models.Record, column string)

// Options configures an Index.
type Options struct {
	// Metrics receives lookup counters. Optional.
	Metrics *metrics.Metrics

	// Diagnostics is the print-once channel for misses. Defaults to a
	// channel writing to the ops log.
	Diagnostics *logging.Once
}

// tables holds the maps produced by Build. It is never mutated after it is
// published, which is what makes reads lock-free.
type tables struct {
	byID    map[models.RecordID]*models.Record
	byKey   map[models.Key]*models.Record
	ordered []*models.Record
}

// Index serves both lookup directions.
type Index struct {
	built atomic.Pointer[tables]

	// factory is set for lazy indexes only
	factory SyntheticFactory

	// insertMu scopes the lazy creation critical section to insertion
	insertMu    sync.Mutex
	synthetic   sync.Map // models.Key -> *models.Record
	syntheticID sync.Map // models.RecordID -> *models.Record

	metrics     *metrics.Metrics
	diagnostics *logging.Once

	listenersMu sync.RWMutex
	listeners   []FeatureListener
}

// NewTableIndex builds an exhaustive index from records. A miss on this
// index resolves to nothing; only the first miss per source is logged.
func NewTableIndex(records []*models.Record, opts Options) *Index {
	ix := newIndex(opts)
	ix.Build(records)
	return ix
}

// NewLazyIndex creates an index without a backing table. Every non-zero
// label resolves, through factory, to a cached synthetic record.
func NewLazyIndex(factory SyntheticFactory, opts Options) *Index {
	if factory == nil {
		factory = DefaultSyntheticRecord
	}
	ix := newIndex(opts)
	ix.factory = factory
	ix.Build(nil)
	return ix
}

func newIndex(opts Options) *Index {
	ix := &Index{
		metrics:     opts.Metrics,
		diagnostics: opts.Diagnostics,
	}
	if ix.diagnostics == nil {
		ix.diagnostics = logging.NewOnce()
	}
	return ix
}

// DefaultSyntheticRecord creates a record whose id is the key string and
// whose features describe where the label came from.
func DefaultSyntheticRecord(key models.Key) *models.Record {
	return models.NewRecord("", key, map[string]models.FeatureValue{
		"label_id":  models.IntValue(key.Label),
		"source":    models.StringValue(key.Source),
		"timepoint": models.IntValue(int64(key.Timepoint)),
	})
}

// Build populates both lookup maps in a single pass and publishes them
// atomically. Background records are skipped. When two records share a key
// or an id the first one wins and the duplicate is reported.
func (ix *Index) Build(records []*models.Record) {
	t := &tables{
		byID:    make(map[models.RecordID]*models.Record, len(records)),
		byKey:   make(map[models.Key]*models.Record, len(records)),
		ordered: make([]*models.Record, 0, len(records)),
	}
	for _, r := range records {
		if r == nil {
			continue
		}
		key := r.Key()
		if key.IsBackground() {
			logging.Diagf("skipping record %s with background label", r.ID)
			continue
		}
		if _, dup := t.byKey[key]; dup {
			ix.diagnostics.Printf("dup-key:"+key.String(), "duplicate annotation for %s, keeping the first", key)
			continue
		}
		if _, dup := t.byID[r.ID]; dup {
			ix.diagnostics.Printf("dup-id:"+string(r.ID), "duplicate annotation id %s, keeping the first", r.ID)
			continue
		}
		t.byID[r.ID] = r
		t.byKey[key] = r
		t.ordered = append(t.ordered, r)
	}
	ix.built.Store(t)
}

// IsLazy reports whether the index fabricates records for unknown labels.
func (ix *Index) IsLazy() bool {
	return ix.factory != nil
}

// Resolve returns the record for a label observed in source at timepoint.
// The background label returns immediately without any lookup, creation or
// logging.
func (ix *Index) Resolve(source string, timepoint uint32, label int64) (*models.Record, bool) {
	if label == models.BackgroundLabel {
		return nil, false
	}
	return ix.ResolveKey(models.Key{Source: source, Timepoint: timepoint, Label: label})
}

// ResolveKey is Resolve for an already assembled key.
func (ix *Index) ResolveKey(key models.Key) (*models.Record, bool) {
	if key.IsBackground() {
		return nil, false
	}
	ix.metrics.Inc(func(m *metrics.Metrics) prometheus.Counter { return m.Lookups })

	if r, ok := ix.built.Load().byKey[key]; ok {
		return r, true
	}

	if ix.factory == nil {
		ix.metrics.Inc(func(m *metrics.Metrics) prometheus.Counter { return m.LookupMisses })
		ix.diagnostics.Printf("miss:"+key.Source, "no annotation for label %d in %s at timepoint %d; further misses for this source are suppressed", key.Label, key.Source, key.Timepoint)
		return nil, false
	}

	if v, ok := ix.synthetic.Load(key); ok {
		return v.(*models.Record), true
	}
	return ix.createSynthetic(key)
}

// createSynthetic is the only write after Build. The second load under the
// lock makes concurrent callers for the same key observe one instance.
func (ix *Index) createSynthetic(key models.Key) (*models.Record, bool) {
	ix.insertMu.Lock()
	defer ix.insertMu.Unlock()

	if v, ok := ix.synthetic.Load(key); ok {
		return v.(*models.Record), true
	}
	r := ix.factory(key)
	if r == nil {
		return nil, false
	}
	ix.synthetic.Store(key, r)
	ix.syntheticID.Store(r.ID, r)
	ix.metrics.Inc(func(m *metrics.Metrics) prometheus.Counter { return m.SyntheticRecords })
	return r, true
}

// ResolveByID returns the record with the given stable id.
func (ix *Index) ResolveByID(id models.RecordID) (*models.Record, bool) {
	if r, ok := ix.built.Load().byID[id]; ok {
		return r, true
	}
	if v, ok := ix.syntheticID.Load(id); ok {
		return v.(*models.Record), true
	}
	return nil, false
}

// Records returns the table records in build order.
func (ix *Index) Records() []*models.Record {
	ordered := ix.built.Load().ordered
	out := make([]*models.Record, len(ordered))
	copy(out, ordered)
	return out
}

// Len returns the number of table records.
func (ix *Index) Len() int {
	return len(ix.built.Load().ordered)
}

// OnFeatureChange registers a listener for column writes.
func (ix *Index) OnFeatureChange(fn FeatureListener) {
	ix.listenersMu.Lock()
	ix.listeners = append(ix.listeners, fn)
	ix.listenersMu.Unlock()
}

// SetFeature writes column on the record with the given id and notifies
// feature listeners before returning.
func (ix *Index) SetFeature(id models.RecordID, column string, value models.FeatureValue) error {
	r, ok := ix.ResolveByID(id)
	if !ok {
		return fmt.Errorf("set %s on %s: %w", column, id, ErrUnknownRecord)
	}
	r.SetFeature(column, value)

	ix.listenersMu.RLock()
	listeners := make([]FeatureListener, len(ix.listeners))
	copy(listeners, ix.listeners)
	ix.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(r, column)
	}
	return nil
}
