package bookmark

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annoview/internal/models"
	"annoview/pkg/selection"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bookmarks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	b := &Bookmark{
		Name:     "dividing cells",
		Selected: []models.RecordID{"seg;0;7", "seg;0;3"},
		Focused:  "seg;0;7",
	}
	require.NoError(t, s.Insert(ctx, b))

	_, err := uuid.Parse(b.ID)
	require.NoError(t, err, "expected generated UUID, got %q", b.ID)
	assert.False(t, b.CreatedAt.IsZero())

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	want := &Bookmark{
		ID:        b.ID,
		Name:      "dividing cells",
		Selected:  []models.RecordID{"seg;0;3", "seg;0;7"},
		Focused:   "seg;0;7",
		CreatedAt: b.CreatedAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bookmark mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, s.Delete(ctx, b.ID))
	_, err = s.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, b.ID), ErrNotFound)
}

func TestInsertKeepsExplicitID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	b := &Bookmark{ID: "fixed", Name: "empty selection"}
	require.NoError(t, s.Insert(ctx, b))
	got, err := s.Get(ctx, "fixed")
	require.NoError(t, err)
	assert.Empty(t, got.Selected)
	assert.Equal(t, models.RecordID(""), got.Focused)

	assert.Error(t, s.Insert(ctx, &Bookmark{ID: "fixed"}))
}

func TestListOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	inserts := []struct {
		name   string
		offset time.Duration
	}{
		{"third", 2 * time.Minute},
		{"first", 0},
		{"second", time.Minute},
	}
	for _, in := range inserts {
		require.NoError(t, s.Insert(ctx, &Bookmark{Name: in.name, CreatedAt: base.Add(in.offset)}))
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "first", list[0].Name)
	assert.Equal(t, "second", list[1].Name)
	assert.Equal(t, "third", list[2].Name)
}

func TestReopenKeepsBookmarks(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := Open(path)
	require.NoError(t, err)
	b := &Bookmark{Name: "kept", Selected: []models.RecordID{"a"}}
	require.NoError(t, s.Insert(ctx, b))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.RecordID{"a"}, got.Selected)
}

func TestSelectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a := models.NewRecord("", models.Key{Source: "seg", Label: 1}, nil)
	c := models.NewRecord("", models.Key{Source: "seg", Label: 2}, nil)

	state := selection.NewState(nil)
	state.Toggle(a)
	state.Toggle(c)
	state.Focus(c, selection.NoInitiator)

	b := FromState("pair", state)
	require.NoError(t, s.Insert(ctx, b))

	state.Clear()
	require.True(t, state.IsEmpty())

	loaded, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	loaded.Apply(state)

	assert.True(t, state.IsSelected(a))
	assert.True(t, state.IsSelected(c))
	focused, ok := state.Focused()
	require.True(t, ok)
	assert.Equal(t, c.ID, focused)
}

func TestExportImport(t *testing.T) {
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	in := []*Bookmark{
		{ID: "one", Name: "first", Selected: []models.RecordID{"x;0;1"}, Focused: "x;0;1", CreatedAt: created},
		{ID: "two", Name: "second", Selected: []models.RecordID{}, CreatedAt: created.Add(time.Hour)},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, in))
	assert.Contains(t, buf.String(), "bookmarks:")

	out, err := Import(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("import mismatch (-want +got):\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "bookmarks.yaml")
	require.NoError(t, ExportFile(path, in))
	fromFile, err := ImportFile(path)
	require.NoError(t, err)
	assert.Len(t, fromFile, 2)

	_, err = Import(bytes.NewBufferString("bookmarks: [\n"))
	assert.Error(t, err)
}
