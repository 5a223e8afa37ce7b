package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"annoview/internal/metrics"
	"annoview/internal/models"
)

const eps = 1e-9

func TestCreateGridPositions(t *testing.T) {
	tests := []struct {
		n    int
		want []models.GridPosition
	}{
		{0, nil},
		{1, []models.GridPosition{{Col: 0, Row: 0}}},
		{4, []models.GridPosition{{Col: 0, Row: 0}, {Col: 1, Row: 0}, {Col: 0, Row: 1}, {Col: 1, Row: 1}}},
		{5, []models.GridPosition{{Col: 0, Row: 0}, {Col: 1, Row: 0}, {Col: 2, Row: 0}, {Col: 0, Row: 1}, {Col: 1, Row: 1}}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			got := CreateGridPositions(tt.n)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("positions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCreateGridPositionsUnique(t *testing.T) {
	for n := 1; n <= 50; n++ {
		seen := make(map[models.GridPosition]bool)
		for _, p := range CreateGridPositions(n) {
			require.False(t, seen[p], "n=%d duplicate %v", n, p)
			seen[p] = true
		}
		assert.Len(t, seen, n)
	}
}

func TestLayoutCentersGroups(t *testing.T) {
	bounds := BoundsMap{
		"a": Box(0, 0, 10, 20),
		"b": Box(5, 5, 25, 15),
	}
	opts := DefaultOptions()
	e, err := NewEngine([][]string{{"a"}, {"b"}}, bounds, opts)
	require.NoError(t, err)

	l, err := e.Layout(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 24, l.TileSize.X, eps)
	assert.InDelta(t, 24, l.TileSize.Y, eps)

	t0, ok := l.Translation(0)
	require.True(t, ok)
	assert.InDelta(t, 7, t0.X, eps)
	assert.InDelta(t, 2, t0.Y, eps)

	t1, ok := l.Translation(1)
	require.True(t, ok)
	assert.InDelta(t, 21, t1.X, eps)
	assert.InDelta(t, 2, t1.Y, eps)

	assert.Equal(t, "a", l.Reference.Image)
}

func TestLayoutWithoutCentering(t *testing.T) {
	bounds := BoundsMap{
		"a": Box(0, 0, 10, 10),
		"b": Box(0, 0, 10, 10),
		"c": Box(0, 0, 10, 10),
	}
	opts := DefaultOptions()
	opts.CenterAtOrigin = false
	opts.Margin = 0
	e, err := NewEngine([][]string{{"a"}, {"b"}, {"c"}}, bounds, opts)
	require.NoError(t, err)

	l, err := e.Layout(context.Background())
	require.NoError(t, err)

	want := []r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}
	for i, w := range want {
		got, _ := l.Translation(i)
		assert.Equal(t, w, got, "group %d", i)
	}
}

func TestCellAtWithoutCenteringUsesEachGroupsTile(t *testing.T) {
	bounds := BoundsMap{
		"a": Box(0, 0, 10, 10),
		"b": Box(100, 100, 110, 110),
	}
	opts := DefaultOptions()
	opts.CenterAtOrigin = false
	e, err := NewEngine([][]string{{"a"}, {"b"}}, bounds, opts)
	require.NoError(t, err)
	l, err := e.Layout(context.Background())
	require.NoError(t, err)

	g, ok := l.ToGridSpace("b", r2.Vec{X: 105, Y: 105})
	require.True(t, ok)
	assert.Equal(t, r2.Vec{X: 117, Y: 105}, g)
	cell, ok := l.CellAt(g)
	require.True(t, ok)
	assert.Equal(t, 1, cell.GroupID)

	g, ok = l.ToGridSpace("a", r2.Vec{X: 5, Y: 5})
	require.True(t, ok)
	cell, ok = l.CellAt(g)
	require.True(t, ok)
	assert.Equal(t, 0, cell.GroupID)

	// Margin around b belongs to b's tile
	tile, ok := l.Tile(1)
	require.True(t, ok)
	assert.InDelta(t, 111, tile.Min.X, eps)
	assert.InDelta(t, 99, tile.Min.Y, eps)
	cell, ok = l.CellAt(r2.Vec{X: 111.5, Y: 99.5})
	require.True(t, ok)
	assert.Equal(t, 1, cell.GroupID)

	_, ok = l.CellAt(r2.Vec{X: 50, Y: 50})
	assert.False(t, ok)
}

func TestNewEngineOwnsGroups(t *testing.T) {
	bounds := BoundsMap{"a": Box(0, 0, 10, 10), "b": Box(0, 0, 10, 10)}
	groups := [][]string{{"a"}, {"b"}}
	e, err := NewEngine(groups, bounds, DefaultOptions())
	require.NoError(t, err)

	groups[1][0] = "a"
	l, err := e.Layout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, l.Cells[1].Images)
	_, ok := l.ImageTranslation("b")
	assert.True(t, ok)
}

func TestLayoutNoOverlap(t *testing.T) {
	bounds := BoundsMap{}
	groups := make([][]string, 7)
	for i := range groups {
		name := fmt.Sprintf("img%d", i)
		bounds[name] = Box(float64(i), float64(-i), float64(3*i+5), float64(2*i+4))
		groups[i] = []string{name}
	}
	e, err := NewEngine(groups, bounds, DefaultOptions())
	require.NoError(t, err)
	l, err := e.Layout(context.Background())
	require.NoError(t, err)

	placed := make([]r2.Box, len(l.Cells))
	for i, c := range l.Cells {
		placed[i] = r2.Box{Min: r2.Add(c.Bounds.Min, c.Translation), Max: r2.Add(c.Bounds.Max, c.Translation)}
	}
	for i := range placed {
		for j := i + 1; j < len(placed); j++ {
			a, b := placed[i], placed[j]
			overlap := a.Min.X < b.Max.X && b.Min.X < a.Max.X && a.Min.Y < b.Max.Y && b.Min.Y < a.Max.Y
			assert.False(t, overlap, "groups %d and %d overlap", i, j)
		}
	}
}

func TestFiveGroupsPositions(t *testing.T) {
	bounds := BoundsMap{}
	var groups [][]string
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("g%d", i)
		bounds[name] = Box(0, 0, 100, 100)
		groups = append(groups, []string{name})
	}
	e, err := NewEngine(groups, bounds, DefaultOptions())
	require.NoError(t, err)

	l, err := e.Layout(context.Background())
	require.NoError(t, err)

	want := []models.GridPosition{{Col: 0, Row: 0}, {Col: 1, Row: 0}, {Col: 2, Row: 0}, {Col: 0, Row: 1}, {Col: 1, Row: 1}}
	for i, c := range l.Cells {
		assert.Equal(t, i, c.GroupID)
		assert.Equal(t, want[i], c.Position)
	}
}

func TestIdenticalBoxesSkipGeneralUnion(t *testing.T) {
	var calls atomic.Int32
	orig := generalUnion
	generalUnion = func(boxes []r2.Box) r2.Box {
		calls.Add(1)
		return boundingUnion(boxes)
	}
	t.Cleanup(func() { generalUnion = orig })

	box := Box(-3, -3, 40, 30)
	bounds := BoundsMap{"c1": box, "c2": box, "c3": box}
	e, err := NewEngine([][]string{{"c1", "c2", "c3"}}, bounds, DefaultOptions())
	require.NoError(t, err)

	l, err := e.Layout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, box, l.Cells[0].Bounds)
	assert.Equal(t, int32(0), calls.Load())

	bounds["c3"] = Box(0, 0, 50, 50)
	_, err = e.Layout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnionBounds(t *testing.T) {
	got := unionBounds([]r2.Box{Box(0, 0, 1, 1), Box(-2, 3, 0, 5)})
	assert.Equal(t, Box(-2, 0, 1, 5), got)
}

func TestParallelMatchesSequential(t *testing.T) {
	bounds := BoundsMap{}
	groups := make([][]string, 23)
	for i := range groups {
		for c := 0; c < 3; c++ {
			name := fmt.Sprintf("g%d-c%d", i, c)
			bounds[name] = Box(float64(c), float64(i%4), float64(10+i+c), float64(8+2*i))
			groups[i] = append(groups[i], name)
		}
	}

	run := func(workers int) *Layout {
		opts := DefaultOptions()
		opts.Workers = workers
		e, err := NewEngine(groups, bounds, opts)
		require.NoError(t, err)
		l, err := e.Layout(context.Background())
		require.NoError(t, err)
		return l
	}

	seq, par := run(1), run(8)
	if diff := cmp.Diff(seq.Cells, par.Cells); diff != "" {
		t.Errorf("cells differ (-sequential +parallel):\n%s", diff)
	}
	assert.Equal(t, seq.TileSize, par.TileSize)
	assert.Equal(t, seq.Transforms(), par.Transforms())
}

func TestMissingReferenceIsFatal(t *testing.T) {
	bounds := BoundsMap{"b": Box(0, 0, 1, 1)}
	e, err := NewEngine([][]string{{"x", "y"}, {"b"}}, bounds, DefaultOptions())
	require.NoError(t, err)

	l, err := e.Layout(context.Background())
	assert.ErrorIs(t, err, ErrNoReferenceImage)
	assert.Nil(t, l)
}

func TestReferenceSkipsMissingImages(t *testing.T) {
	bounds := BoundsMap{"second": Box(0, 0, 5, 5), "other": Box(0, 0, 5, 5)}
	e, err := NewEngine([][]string{{"first", "second"}, {"other", "ghost"}}, bounds, DefaultOptions())
	require.NoError(t, err)

	l, err := e.Layout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", l.Reference.Image)
	assert.Equal(t, []string{"second"}, l.Cells[0].Images)
	assert.Equal(t, []string{"other"}, l.Cells[1].Images)
	_, ok := l.ImageTranslation("ghost")
	assert.False(t, ok)
}

type failingProvider struct {
	BoundsMap
	fail string
	mu   sync.Mutex
	seen []string
}

var errBroken = errors.New("broken metadata")

func (p *failingProvider) Bounds(image string) (r2.Box, error) {
	p.mu.Lock()
	p.seen = append(p.seen, image)
	p.mu.Unlock()
	if image == p.fail {
		return r2.Box{}, errBroken
	}
	return p.BoundsMap.Bounds(image)
}

func TestFailingGroupAbortsLayout(t *testing.T) {
	bounds := BoundsMap{}
	groups := make([][]string, 10)
	for i := range groups {
		name := fmt.Sprintf("img%d", i)
		bounds[name] = Box(0, 0, 1, 1)
		groups[i] = []string{name}
	}
	p := &failingProvider{BoundsMap: bounds, fail: "img6"}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	opts := DefaultOptions()
	opts.Workers = 3
	opts.Metrics = m
	e, err := NewEngine(groups, p, opts)
	require.NoError(t, err)

	l, err := e.Layout(context.Background())
	assert.ErrorIs(t, err, errBroken)
	assert.Nil(t, l)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LayoutFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Layouts))
}

func TestEmptyGroupFails(t *testing.T) {
	bounds := BoundsMap{"a": Box(0, 0, 1, 1)}
	e, err := NewEngine([][]string{{"a"}, {"missing"}}, bounds, DefaultOptions())
	require.NoError(t, err)
	_, err = e.Layout(context.Background())
	assert.ErrorIs(t, err, ErrEmptyGroup)
}

func TestInvalidBounds(t *testing.T) {
	bounds := BoundsMap{"a": Box(0, 0, 1, 1), "b": Box(5, 5, 1, 1)}
	e, err := NewEngine([][]string{{"a"}, {"b"}}, bounds, DefaultOptions())
	require.NoError(t, err)
	_, err = e.Layout(context.Background())
	assert.ErrorIs(t, err, ErrInvalidBounds)
}

func TestCancelledContext(t *testing.T) {
	bounds := BoundsMap{"a": Box(0, 0, 1, 1)}
	e, err := NewEngine([][]string{{"a"}}, bounds, DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Layout(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExplicitPositions(t *testing.T) {
	bounds := BoundsMap{"a": Box(0, 0, 10, 10), "b": Box(0, 0, 10, 10)}
	groups := [][]string{{"a"}, {"b"}}

	opts := DefaultOptions()
	opts.Margin = 0
	opts.Positions = []models.GridPosition{{Col: 0, Row: 2}, {Col: 3, Row: 0}}
	e, err := NewEngine(groups, bounds, opts)
	require.NoError(t, err)
	l, err := e.Layout(context.Background())
	require.NoError(t, err)

	t0, _ := l.Translation(0)
	t1, _ := l.Translation(1)
	assert.Equal(t, r2.Vec{X: 0, Y: 20}, t0)
	assert.Equal(t, r2.Vec{X: 30, Y: 0}, t1)

	opts.Positions = []models.GridPosition{{Col: 1, Row: 1}, {Col: 1, Row: 1}}
	_, err = NewEngine(groups, bounds, opts)
	assert.ErrorIs(t, err, ErrDuplicatePosition)

	opts.Positions = []models.GridPosition{{Col: 1, Row: 1}}
	_, err = NewEngine(groups, bounds, opts)
	assert.ErrorIs(t, err, ErrPositionCount)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(nil, BoundsMap{}, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoGroups)

	_, err = NewEngine([][]string{{"a"}, {"a"}}, BoundsMap{}, DefaultOptions())
	assert.ErrorIs(t, err, ErrDuplicateImage)
}

func TestGridSpaceRoundTrip(t *testing.T) {
	bounds := BoundsMap{"a": Box(0, 0, 10, 10), "b": Box(100, 100, 120, 110)}
	e, err := NewEngine([][]string{{"a"}, {"b"}}, bounds, DefaultOptions())
	require.NoError(t, err)
	l, err := e.Layout(context.Background())
	require.NoError(t, err)

	p := r2.Vec{X: 105, Y: 103}
	g, ok := l.ToGridSpace("b", p)
	require.True(t, ok)
	back, ok := l.FromGridSpace("b", g)
	require.True(t, ok)
	assert.InDelta(t, p.X, back.X, eps)
	assert.InDelta(t, p.Y, back.Y, eps)

	cell, ok := l.CellAt(g)
	require.True(t, ok)
	assert.Equal(t, 1, cell.GroupID)

	_, ok = l.ToGridSpace("nope", p)
	assert.False(t, ok)
	_, ok = l.CellAt(r2.Vec{X: -1, Y: -1})
	assert.False(t, ok)
}

func TestLayoutSize(t *testing.T) {
	bounds := BoundsMap{}
	var groups [][]string
	for i := 0; i < 5; i++ {
		name := fmt.Sprint(i)
		bounds[name] = Box(0, 0, 10, 10)
		groups = append(groups, []string{name})
	}
	opts := DefaultOptions()
	opts.Margin = 0
	e, err := NewEngine(groups, bounds, opts)
	require.NoError(t, err)
	l, err := e.Layout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r2.Vec{X: 30, Y: 20}, l.Size())
}
