package set

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	require := require.New(t)

	s1 := Of[int]()
	require.Equal(0, s1.Len())

	s2 := Of(1, 2, 3)
	require.Equal(3, s2.Len())
	require.True(s2.Contains(1))
	require.True(s2.Contains(2))
	require.True(s2.Contains(3))

	s3 := Of(1, 2, 2, 3, 3, 3)
	require.Equal(3, s3.Len())
}

func TestAdd(t *testing.T) {
	require := require.New(t)

	s := make(Set[string])
	require.Equal(0, s.Len())

	s.Add("a")
	require.Equal(1, s.Len())
	require.True(s.Contains("a"))

	s.Add("b", "c")
	require.Equal(3, s.Len())
	require.True(s.Contains("b"))
	require.True(s.Contains("c"))

	s.Add("a")
	require.Equal(3, s.Len())
}

func TestRemove(t *testing.T) {
	require := require.New(t)

	s := Of(1, 2, 3, 4, 5)

	s.Remove(3)
	require.Equal(4, s.Len())
	require.False(s.Contains(3))

	s.Remove(1, 5)
	require.Equal(2, s.Len())
	require.False(s.Contains(1))
	require.False(s.Contains(5))
	require.True(s.Contains(2))
	require.True(s.Contains(4))

	s.Remove(10)
	require.Equal(2, s.Len())
}

func TestList(t *testing.T) {
	require := require.New(t)

	s := Of(1, 2, 3)
	list := s.List()
	require.Len(list, 3)

	listSet := Of(list...)
	require.Equal(s.Len(), listSet.Len())
}

func TestUnion(t *testing.T) {
	require := require.New(t)

	s1 := Of(1, 2, 3)
	s2 := Of(3, 4, 5)

	union := s1.Union(s2)
	require.Equal(5, union.Len())
	for i := 1; i <= 5; i++ {
		require.True(union.Contains(i))
	}
}

func TestDifference(t *testing.T) {
	require := require.New(t)

	s1 := Of(1, 2, 3, 4)
	s2 := Of(3, 4, 5, 6)

	diff := s1.Difference(s2)
	require.Equal(2, diff.Len())
	require.True(diff.Contains(1))
	require.True(diff.Contains(2))
	require.False(diff.Contains(3))
	require.False(diff.Contains(4))
}

func TestString(t *testing.T) {
	require := require.New(t)

	s1 := Of[int]()
	require.Equal("{}", s1.String())

	s2 := Of(42)
	require.Equal("{42}", s2.String())
}

func TestClone(t *testing.T) {
	require := require.New(t)

	s1 := Of(1, 2, 3)
	s2 := s1.Clone()
	require.Equal(s1.Len(), s2.Len())

	s2.Add(4)
	require.Equal(3, s1.Len())
	require.Equal(4, s2.Len())
}
