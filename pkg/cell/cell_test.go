package cell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareOrdering(t *testing.T) {
	a := Cell{Row: []byte("a"), Column: []byte("x"), Timestamp: 2}
	b := Cell{Row: []byte("a"), Column: []byte("x"), Timestamp: 1}
	require.True(t, Less(a, b), "higher timestamp sorts first within the same key")

	c := Cell{Row: []byte("a"), Column: []byte("y"), Timestamp: 1}
	require.True(t, Less(a, c), "column a:x sorts before a:y at any timestamp")

	d := Cell{Row: []byte("b"), Column: []byte("a"), Timestamp: 100}
	require.True(t, Less(c, d), "row a sorts before row b regardless of column/timestamp")
}

func TestRowIntervalContains(t *testing.T) {
	iv := RowInterval{Lo: []byte("b"), Hi: []byte("m"), LoInclusive: true, HiInclusive: false}
	require.True(t, iv.Contains([]byte("b")))
	require.True(t, iv.Contains([]byte("f")))
	require.False(t, iv.Contains([]byte("m")))
	require.False(t, iv.Contains([]byte("a")))
}

func TestRowIntervalSubsetOf(t *testing.T) {
	whole := RowInterval{Lo: []byte("a"), Hi: []byte("m"), LoInclusive: true, HiInclusive: true}
	sub := RowInterval{Lo: []byte("c"), Hi: []byte("f"), LoInclusive: true, HiInclusive: true}
	require.True(t, sub.SubsetOf(whole))
	require.False(t, whole.SubsetOf(sub))
}

func TestPredicateMatches(t *testing.T) {
	p := Predicate{
		Rows:     []RowInterval{{Lo: []byte("a"), Hi: []byte("m"), LoInclusive: true, HiInclusive: true}},
		Families: [][]byte{[]byte("cf")},
		TimeLo:   10,
		TimeHi:   20,
	}
	ok := Cell{Row: []byte("b"), Column: []byte("cf:q"), Timestamp: 15}
	require.True(t, p.Matches(ok))

	badRow := Cell{Row: []byte("z"), Column: []byte("cf:q"), Timestamp: 15}
	require.False(t, p.Matches(badRow))

	badFamily := Cell{Row: []byte("b"), Column: []byte("other:q"), Timestamp: 15}
	require.False(t, p.Matches(badFamily))

	badTime := Cell{Row: []byte("b"), Column: []byte("cf:q"), Timestamp: 5}
	require.False(t, p.Matches(badTime))
}
