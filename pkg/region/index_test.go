package region

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"annoview/pkg/grid"
)

func box(minX, minY, maxX, maxY float64) *r2.Box {
	b := grid.Box(minX, minY, maxX, maxY)
	return &b
}

func TestFindFirstMatch(t *testing.T) {
	ix, err := NewIndex(
		Region{ID: "left", Box: box(0, 0, 10, 10)},
		Region{ID: "overlap", Box: box(5, 5, 15, 15)},
		Region{ID: "right", Box: box(10, 0, 20, 10)},
	)
	require.NoError(t, err)

	r, ok := ix.Find(r2.Vec{X: 7, Y: 7})
	require.True(t, ok)
	assert.Equal(t, "left", r.ID)

	all := ix.FindAll(r2.Vec{X: 7, Y: 7})
	require.Len(t, all, 2)
	assert.Equal(t, "left", all[0].ID)
	assert.Equal(t, "overlap", all[1].ID)

	// Shared edge belongs to the region starting there
	r, ok = ix.Find(r2.Vec{X: 10, Y: 2})
	require.True(t, ok)
	assert.Equal(t, "right", r.ID)

	_, ok = ix.Find(r2.Vec{X: -1, Y: 0})
	assert.False(t, ok)
	assert.Empty(t, ix.FindAll(r2.Vec{X: 100, Y: 100}))
}

func TestNilBoxNeverContains(t *testing.T) {
	ix, err := NewIndex(Region{ID: "empty"}, Region{ID: "real", Box: box(0, 0, 1, 1)})
	require.NoError(t, err)

	r, ok := ix.Find(r2.Vec{X: 0.5, Y: 0.5})
	require.True(t, ok)
	assert.Equal(t, "real", r.ID)
	assert.False(t, Region{}.Contains(r2.Vec{}))
	assert.Equal(t, 2, ix.Len())
}

func TestFindAtTimepoint(t *testing.T) {
	ix, err := NewIndex(
		Region{ID: "t0", Box: box(0, 0, 10, 10), Timepoint: 0},
		Region{ID: "t1", Box: box(0, 0, 10, 10), Timepoint: 1},
	)
	require.NoError(t, err)

	r, ok := ix.FindAt(1, r2.Vec{X: 1, Y: 1})
	require.True(t, ok)
	assert.Equal(t, "t1", r.ID)
	_, ok = ix.FindAt(2, r2.Vec{X: 1, Y: 1})
	assert.False(t, ok)
}

func TestAddRejectsDuplicateAndCopiesBox(t *testing.T) {
	b := box(0, 0, 1, 1)
	ix, err := NewIndex(Region{ID: "a", Box: b})
	require.NoError(t, err)
	assert.Error(t, ix.Add(Region{ID: "a"}))

	b.Max.X = 100
	_, ok := ix.Find(r2.Vec{X: 50, Y: 0.5})
	assert.False(t, ok)

	got, ok := ix.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Box.Max.X)
	_, ok = ix.Get("b")
	assert.False(t, ok)
}

func TestFromLayout(t *testing.T) {
	bounds := grid.BoundsMap{
		"a": grid.Box(0, 0, 10, 10),
		"b": grid.Box(0, 0, 10, 10),
	}
	e, err := grid.NewEngine([][]string{{"a"}, {"b"}}, bounds, grid.DefaultOptions())
	require.NoError(t, err)
	l, err := e.Layout(context.Background())
	require.NoError(t, err)

	ix := FromLayout(l, 0)
	require.Equal(t, 2, ix.Len())

	p, ok := l.ToGridSpace("b", r2.Vec{X: 5, Y: 5})
	require.True(t, ok)
	r, ok := ix.Find(p)
	require.True(t, ok)
	assert.Equal(t, "1", r.ID)

	// Margin between tiles is outside every region
	_, ok = ix.Find(r2.Vec{X: 0.1, Y: 0.1})
	assert.False(t, ok)
}

func TestConcurrentQueries(t *testing.T) {
	ix, err := NewIndex()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ix.Find(r2.Vec{X: float64(j), Y: float64(i)})
				ix.Regions()
			}
		}(i)
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, ix.Add(Region{ID: string(rune('a' + i)), Box: box(float64(i), 0, float64(i+1), 10)}))
	}
	wg.Wait()
	assert.Equal(t, 20, ix.Len())
}
