package selection

import (
	"annoview/internal/models"
)

// Snapshot is the persistable form of a selection. It refers to records by
// stable id only, never by object identity.
type Snapshot struct {
	Selected []models.RecordID `yaml:"selected" json:"selected"`
	Focused  models.RecordID   `yaml:"focused,omitempty" json:"focused,omitempty"`
}

// Snapshot captures the current selection.
func (s *State) Snapshot() Snapshot {
	snap := s.snap.Load()
	out := Snapshot{Selected: sortedIDs(snap.selected)}
	if snap.hasFocus {
		out.Focused = snap.focused
	}
	return out
}

// Restore replaces the selection with snap and notifies once. Ids are taken
// as-is; callers that need to drop ids no longer present in the dataset
// filter them first.
func (s *State) Restore(snap Snapshot) {
	s.update(func(next *snapshot) (Event, bool) {
		next.selected = make(map[models.RecordID]struct{}, len(snap.Selected))
		for _, id := range snap.Selected {
			next.selected[id] = struct{}{}
		}
		next.focused, next.hasFocus = snap.Focused, snap.Focused != ""
		return Event{Kind: Restored, IDs: sortedIDs(next.selected)}, true
	})
}
