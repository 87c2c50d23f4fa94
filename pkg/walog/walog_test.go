package walog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdi-go/kdi/pkg/cell"
)

func TestAppendSyncRecover(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(Options{Dir: dir})
	require.NoError(t, err)

	c1 := cell.Cell{Row: []byte("a"), Column: []byte("x"), Timestamp: 1, Value: []byte("1")}
	c2 := cell.Cell{Row: []byte("a"), Column: []byte("x"), Timestamp: 2, Value: []byte("2")}
	require.NoError(t, l.Append("t1", c1))
	require.NoError(t, l.Append("t1", c2))
	require.NoError(t, l.Sync())
	require.NoError(t, l.Close())

	segs, err := ListSegments(dir)
	require.NoError(t, err)
	require.Len(t, segs, 1)

	records, err := Replay(segs[0], false)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "t1", records[0].TabletID)
	require.Equal(t, int64(1), records[0].Cell.Timestamp)
	require.Equal(t, int64(2), records[1].Cell.Timestamp)
}

func TestConcurrentSyncCoalesces(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := cell.Cell{Row: []byte("r"), Column: []byte("c"), Timestamp: int64(i), Value: []byte("v")}
			require.NoError(t, l.Append("t", c))
			require.NoError(t, l.Sync())
		}(i)
	}
	wg.Wait()

	segs, err := ListSegments(dir)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	records, err := Replay(segs[0], false)
	require.NoError(t, err)
	require.Len(t, records, 20)
}

func TestSegmentRollOnSize(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(Options{Dir: dir, MaxSegmentBytes: 1})
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 3; i++ {
		c := cell.Cell{Row: []byte("r"), Column: []byte("c"), Timestamp: int64(i), Value: []byte("v")}
		require.NoError(t, l.Append("t", c))
	}
	require.NoError(t, l.Sync())

	segs, err := ListSegments(dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(segs), 2, "tiny MaxSegmentBytes should force at least one roll")
}

func TestReclaimDeletesOldSegments(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(Options{Dir: dir, MaxSegmentBytes: 1})
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 3; i++ {
		c := cell.Cell{Row: []byte("r"), Column: []byte("c"), Timestamp: int64(i), Value: []byte("v")}
		require.NoError(t, l.Append("t", c))
	}
	require.NoError(t, l.Sync())

	before := l.Segments()
	require.GreaterOrEqual(t, len(before), 2)

	require.NoError(t, l.Reclaim(len(before)-1))
	after := l.Segments()
	require.Len(t, after, 1)
}
