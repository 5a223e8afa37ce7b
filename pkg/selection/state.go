// Package selection holds the shared "what is selected" state that table
// rows, rendered pixels, overlays and plots react to.
//
// Reads are served from an immutable snapshot that is swapped on every
// write, so per-pixel IsSelected calls never take a lock. Every mutation
// notifies all listeners on the calling goroutine before it returns.
// Listeners run after the state lock is released and may themselves mutate
// the state; a mutation that changes nothing does not notify, which ends
// ping-pong loops between coupled listeners.
//
// With several goroutines mutating at once, listeners may see events in a
// different order than their snapshots were published. Every event carries
// the sequence number of the snapshot it produced; a listener that needs
// publication order compares Event.Seq with Version or with the last Seq it
// handled.
package selection

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"annoview/internal/metrics"
	"annoview/internal/models"
)

// Initiator is an opaque token identifying the view that caused a focus
// change. A view compares the initiator of an incoming event with its own
// token to skip re-centering on focus changes it triggered itself.
type Initiator struct {
	id uint64
}

// NoInitiator marks changes that did not originate from a view.
var NoInitiator Initiator

var initiatorSeq atomic.Uint64

// NewInitiator returns a token distinct from every other token.
func NewInitiator() Initiator {
	return Initiator{id: initiatorSeq.Add(1)}
}

// EventKind describes what changed.
type EventKind int

const (
	// Selected means IDs were added to the selection.
	Selected EventKind = iota
	// Deselected means IDs were removed from the selection.
	Deselected
	// Focused means the focused record changed or was re-focused.
	Focused
	// Cleared means the selection and focus were reset.
	Cleared
	// Restored means the state was replaced from persisted ids.
	Restored
)

func (k EventKind) String() string {
	switch k {
	case Selected:
		return "selected"
	case Deselected:
		return "deselected"
	case Focused:
		return "focused"
	case Cleared:
		return "cleared"
	case Restored:
		return "restored"
	default:
		return "unknown"
	}
}

// Event is passed to listeners after a mutation.
type Event struct {
	Kind EventKind

	// IDs holds the records whose selection changed, or the focused record
	// for Focused events.
	IDs []models.RecordID

	// Initiator is the token passed to Focus, NoInitiator otherwise.
	Initiator Initiator

	// Seq is the version of the snapshot this mutation published
	Seq uint64
}

// Listener reacts to selection changes.
type Listener func(Event)

type snapshot struct {
	selected map[models.RecordID]struct{}
	focused  models.RecordID
	hasFocus bool
	seq      uint64
}

var emptySnapshot = &snapshot{selected: map[models.RecordID]struct{}{}}

type subscription struct {
	id int
	fn Listener
}

// State is the shared selection of one dataset session.
type State struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	listenersMu sync.RWMutex
	listeners   []subscription
	nextID      int

	metrics *metrics.Metrics
}

// NewState creates an empty selection. m may be nil.
func NewState(m *metrics.Metrics) *State {
	s := &State{metrics: m}
	s.snap.Store(emptySnapshot)
	return s
}

// OnChange registers a listener and returns a function removing it.
func (s *State) OnChange(fn Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *State) notify(ev Event) {
	s.metrics.Inc(func(m *metrics.Metrics) prometheus.Counter { return m.SelectionMutation })

	s.listenersMu.RLock()
	subs := make([]subscription, len(s.listeners))
	copy(subs, s.listeners)
	s.listenersMu.RUnlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}

// update applies fn to a copy of the current snapshot under the write lock
// and publishes it. fn returns the event to dispatch, or false when nothing
// changed.
func (s *State) update(fn func(next *snapshot) (Event, bool)) {
	s.mu.Lock()
	cur := s.snap.Load()
	next := &snapshot{
		selected: make(map[models.RecordID]struct{}, len(cur.selected)),
		focused:  cur.focused,
		hasFocus: cur.hasFocus,
		seq:      cur.seq + 1,
	}
	for id := range cur.selected {
		next.selected[id] = struct{}{}
	}
	ev, changed := fn(next)
	if changed {
		ev.Seq = next.seq
		s.snap.Store(next)
	}
	s.mu.Unlock()

	if changed {
		s.notify(ev)
	}
}

// Toggle flips the selection of record. Deselecting the focused record
// clears focus.
func (s *State) Toggle(record *models.Record) {
	if record == nil {
		return
	}
	id := record.ID
	s.update(func(next *snapshot) (Event, bool) {
		if _, ok := next.selected[id]; ok {
			delete(next.selected, id)
			if next.hasFocus && next.focused == id {
				next.focused, next.hasFocus = "", false
			}
			return Event{Kind: Deselected, IDs: []models.RecordID{id}}, true
		}
		next.selected[id] = struct{}{}
		return Event{Kind: Selected, IDs: []models.RecordID{id}}, true
	})
}

// SetSelected selects or deselects all records in one mutation. Records
// already in the requested state are left out of the event; when none
// change no event is sent.
func (s *State) SetSelected(records []*models.Record, selected bool) {
	ids := make([]models.RecordID, 0, len(records))
	for _, r := range records {
		if r != nil {
			ids = append(ids, r.ID)
		}
	}
	s.SetSelectedIDs(ids, selected)
}

// SetSelectedIDs is SetSelected for persisted ids.
func (s *State) SetSelectedIDs(ids []models.RecordID, selected bool) {
	s.update(func(next *snapshot) (Event, bool) {
		var changed []models.RecordID
		for _, id := range ids {
			_, has := next.selected[id]
			switch {
			case selected && !has:
				next.selected[id] = struct{}{}
				changed = append(changed, id)
			case !selected && has:
				delete(next.selected, id)
				if next.hasFocus && next.focused == id {
					next.focused, next.hasFocus = "", false
				}
				changed = append(changed, id)
			}
		}
		if len(changed) == 0 {
			return Event{}, false
		}
		kind := Selected
		if !selected {
			kind = Deselected
		}
		return Event{Kind: kind, IDs: changed}, true
	})
}

// Focus moves focus to record without changing the selection. Focusing an
// unselected record is legal and is used for preview navigation. Focus
// always notifies, even when record is already focused.
func (s *State) Focus(record *models.Record, initiator Initiator) {
	if record == nil {
		return
	}
	id := record.ID
	s.update(func(next *snapshot) (Event, bool) {
		next.focused, next.hasFocus = id, true
		return Event{Kind: Focused, IDs: []models.RecordID{id}, Initiator: initiator}, true
	})
}

// Clear removes every selection and the focus.
func (s *State) Clear() {
	s.update(func(next *snapshot) (Event, bool) {
		if len(next.selected) == 0 && !next.hasFocus {
			return Event{}, false
		}
		ids := sortedIDs(next.selected)
		next.selected = map[models.RecordID]struct{}{}
		next.focused, next.hasFocus = "", false
		return Event{Kind: Cleared, IDs: ids}, true
	})
}

// IsSelected reports whether record is selected.
func (s *State) IsSelected(record *models.Record) bool {
	if record == nil {
		return false
	}
	return s.IsSelectedID(record.ID)
}

// IsSelectedID reports whether the record with id is selected.
func (s *State) IsSelectedID(id models.RecordID) bool {
	_, ok := s.snap.Load().selected[id]
	return ok
}

// IsEmpty reports whether nothing is selected.
func (s *State) IsEmpty() bool {
	return len(s.snap.Load().selected) == 0
}

// Len returns the number of selected records.
func (s *State) Len() int {
	return len(s.snap.Load().selected)
}

// Version returns the sequence number of the current snapshot. It starts
// at zero and grows by one with every mutation that notifies.
func (s *State) Version() uint64 {
	return s.snap.Load().seq
}

// Focused returns the focused record id, if any.
func (s *State) Focused() (models.RecordID, bool) {
	snap := s.snap.Load()
	return snap.focused, snap.hasFocus
}

// Selected returns the selected ids in sorted order.
func (s *State) Selected() []models.RecordID {
	return sortedIDs(s.snap.Load().selected)
}

func sortedIDs(set map[models.RecordID]struct{}) []models.RecordID {
	ids := make([]models.RecordID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
