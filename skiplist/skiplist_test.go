package skiplist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intLess(a, b int) bool { return a < b }

func TestFrontReturnsLowestKey(t *testing.T) {
	sl := New[int, string](intLess)
	sl.AddRight(30, "c")
	sl.AddRight(10, "a")
	sl.AddRight(20, "b")

	n, ok := sl.Front()
	require.True(t, ok)
	require.Equal(t, 10, n.Key())
	require.Equal(t, "a", n.Value())
}

func TestSkipForwardWalksInOrder(t *testing.T) {
	sl := New[int, int](intLess)
	for _, k := range []int{5, 1, 3, 2, 4} {
		sl.AddRight(k, k*10)
	}

	var got []int
	n, ok := sl.Front()
	for ok {
		got = append(got, n.Key())
		n, ok = sl.SkipForward(n)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestAddRightAndAddLeftOrderEqualKeys(t *testing.T) {
	sl := New[int, string](intLess)
	first := sl.AddRight(1, "first-right")
	sl.AddRight(1, "second-right")
	left := sl.AddLeft(1, "left")

	var got []string
	n, ok := sl.Front()
	for ok {
		got = append(got, n.Value())
		n, ok = sl.SkipForward(n)
	}
	require.Equal(t, []string{"left", "first-right", "second-right"}, got)
	require.Equal(t, "left", left.Value())
	require.Equal(t, "first-right", first.Value())
}

func TestUpdateRightPreservesLevelAndRepositions(t *testing.T) {
	sl := New[int, string](intLess)
	n := sl.AddRight(5, "x")
	originalLevel := len(n.forward)
	sl.AddRight(1, "a")
	sl.AddRight(100, "z")

	require.True(t, sl.UpdateRight(n, 2))
	require.Equal(t, originalLevel, len(n.forward))
	require.Equal(t, 2, n.Key())

	front, _ := sl.Front()
	require.Equal(t, "a", front.Value())
	second, _ := sl.SkipForward(front)
	require.Equal(t, n, second)
}

func TestRemoveUnlinksNodeAndRejectsDoubleRemove(t *testing.T) {
	sl := New[int, string](intLess)
	n1 := sl.AddRight(1, "a")
	sl.AddRight(2, "b")

	require.True(t, sl.Remove(n1))
	require.False(t, sl.Remove(n1))
	require.Equal(t, 1, sl.Len())

	front, _ := sl.Front()
	require.Equal(t, "b", front.Value())
}

func TestRemoveAllEmptiesList(t *testing.T) {
	sl := New[int, string](intLess)
	sl.AddRight(1, "a")
	sl.AddRight(2, "b")
	sl.AddRight(3, "c")

	require.Equal(t, 3, sl.RemoveAll())
	require.True(t, sl.Empty())
	_, ok := sl.Front()
	require.False(t, ok)
}

func TestManyNodesStayOrdered(t *testing.T) {
	sl := New[int, int](intLess)
	const n = 500
	for i := n - 1; i >= 0; i-- {
		sl.AddRight(i, i)
	}
	require.Equal(t, n, sl.Len())

	prev := -1
	node, ok := sl.Front()
	count := 0
	for ok {
		require.Greater(t, node.Key(), prev)
		prev = node.Key()
		count++
		node, ok = sl.SkipForward(node)
	}
	require.Equal(t, n, count)
}
