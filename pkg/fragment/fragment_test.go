package fragment

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdi-go/kdi/pkg/cell"
)

func mkCell(row, col string, ts int64, val string) cell.Cell {
	return cell.Cell{Row: []byte(row), Column: []byte(col), Timestamp: ts, Value: []byte(val)}
}

func TestMemFragmentScanOrder(t *testing.T) {
	m := NewMemFragment()
	m.Append(mkCell("b", "x", 1, "1"))
	m.Append(mkCell("a", "x", 2, "2"))
	m.Append(mkCell("a", "x", 1, "1"))

	it, err := m.Scan(cell.Unbounded())
	require.NoError(t, err)
	defer it.Close()

	var got []cell.Cell
	for {
		c, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, c)
	}
	require.Len(t, got, 3)
	require.Equal(t, "a", string(got[0].Row))
	require.Equal(t, int64(2), got[0].Timestamp)
	require.Equal(t, "a", string(got[1].Row))
	require.Equal(t, int64(1), got[1].Timestamp)
	require.Equal(t, "b", string(got[2].Row))
}

// TestFlushAndScanRoundTrip is the round-trip law from spec.md §8:
// writing K cells to a fragment and scanning with an unrestricted
// predicate yields exactly those K cells in order.
func TestFlushAndScanRoundTrip(t *testing.T) {
	m := NewMemFragment()
	want := []cell.Cell{
		mkCell("a", "x", 2, "2"),
		mkCell("a", "x", 1, "1"),
		mkCell("b", "y", 5, "v"),
	}
	for _, c := range want {
		m.Append(c)
	}

	dir := t.TempDir()
	df, err := Flush(m, filepath.Join(dir, "frag.dat"), true)
	require.NoError(t, err)
	require.True(t, df.Static())
	require.Equal(t, int64(len(want)), df.EstimatedCells())

	it, err := df.Scan(cell.Unbounded())
	require.NoError(t, err)
	defer it.Close()

	var got []cell.Cell
	for {
		c, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, c)
	}
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, string(want[i].Row), string(got[i].Row))
		require.Equal(t, string(want[i].Column), string(got[i].Column))
		require.Equal(t, want[i].Timestamp, got[i].Timestamp)
		require.Equal(t, string(want[i].Value), string(got[i].Value))
	}
}

func TestRegistryOpenDisk(t *testing.T) {
	m := NewMemFragment()
	m.Append(mkCell("a", "x", 1, "v"))
	dir := t.TempDir()
	path := filepath.Join(dir, "f.dat")
	_, err := Flush(m, path, false)
	require.NoError(t, err)

	reg := NewRegistry()
	f, err := reg.Open("disk:" + path)
	require.NoError(t, err)
	require.Equal(t, "disk:"+path, f.URI())
}
