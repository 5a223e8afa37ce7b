// Package coloring maps annotation records to colors.
//
// Three policies compose: explicit fixed colors (including the transparent
// defaults and colors decoded from an RGBA column), a categorical hash into
// a LUT, and a continuous mapping of a numeric column. SelectionColoring
// wraps any of them to dim or highlight according to a selection.State.
package coloring

import (
	"image/color"
	"sync"

	"annoview/internal/models"
)

// Model converts a record into a color and tells listeners when the
// mapping changes.
type Model interface {
	Convert(r *models.Record) color.NRGBA
	OnChange(fn func()) (unsubscribe func())
}

// notifier is the listener list shared by all models. Every mutating call
// fires exactly once after the model lock is released.
type notifier struct {
	mu        sync.RWMutex
	listeners []listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	fn func()
}

// OnChange registers fn and returns a function removing it.
func (n *notifier) OnChange(fn func()) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners = append(n.listeners, listenerEntry{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, l := range n.listeners {
			if l.id == id {
				n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

func (n *notifier) notify() {
	n.mu.RLock()
	entries := make([]listenerEntry, len(n.listeners))
	copy(entries, n.listeners)
	n.mu.RUnlock()
	for _, l := range entries {
		l.fn()
	}
}

// TransparentValues are the feature values that render transparent unless
// a fixed color is assigned to them.
var TransparentValues = []string{"0", "0.0", "None", "NaN", "Infinity", "-Infinity"}

// Registry holds one model per annotation column for a dataset session.
// It replaces a process-wide table: callers create one per open dataset and
// pass it to every component that colors annotations.
type Registry struct {
	mu     sync.Mutex
	models map[string]Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// GetOrCreate returns the model for column, creating it with create on
// first use. A failing create is not cached.
func (r *Registry) GetOrCreate(column string, create func() (Model, error)) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[column]; ok {
		return m, nil
	}
	m, err := create()
	if err != nil {
		return nil, err
	}
	r.models[column] = m
	return m, nil
}

// Get returns the model registered for column.
func (r *Registry) Get(column string) (Model, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[column]
	return m, ok
}

// Len returns the number of registered columns.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.models)
}
