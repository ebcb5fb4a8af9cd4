package history_test

import (
	"testing"

	"github.com/MegaGrindStone/talkback/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingEvictsOldestFirst(t *testing.T) {
	r := history.New[int](3)

	for i := 1; i <= 3; i++ {
		_, evicted := r.Push(i)
		assert.False(t, evicted)
	}
	assert.Equal(t, []int{1, 2, 3}, r.Items())

	old, evicted := r.Push(4)
	require.True(t, evicted)
	assert.Equal(t, 1, old)

	old, evicted = r.Push(5)
	require.True(t, evicted)
	assert.Equal(t, 2, old)

	assert.Equal(t, []int{3, 4, 5}, r.Items())
	assert.Equal(t, 3, r.Len())
}

func TestRingNeverExceedsCapacity(t *testing.T) {
	r := history.New[string](4)
	for i := range 25 {
		r.Push(string(rune('a' + i)))
		assert.LessOrEqual(t, r.Len(), r.Cap())
	}
	assert.Equal(t, []string{"v", "w", "x", "y"}, r.Items())
}

func TestRingLastAndClear(t *testing.T) {
	r := history.New[int](2)

	_, ok := r.Last()
	assert.False(t, ok)

	r.Push(7)
	r.Push(8)
	r.Push(9)
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 9, last)

	r.Clear()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Items())

	r.Push(10)
	assert.Equal(t, []int{10}, r.Items())
}

func TestRingMinimumCapacity(t *testing.T) {
	r := history.New[int](0)
	assert.Equal(t, 1, r.Cap())
	r.Push(1)
	r.Push(2)
	assert.Equal(t, []int{2}, r.Items())
}
