package compactor

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/fragment"
)

func mkCell(row, col string, ts int64, val string) cell.Cell {
	return cell.Cell{Row: []byte(row), Column: []byte(col), Timestamp: ts, Value: []byte(val)}
}

func diskFragmentOf(t *testing.T, dir, name string, cells []cell.Cell) fragment.Fragment {
	t.Helper()
	m := fragment.NewMemFragment()
	for _, c := range cells {
		m.Append(c)
	}
	df, err := fragment.Flush(m, filepath.Join(dir, name), false)
	require.NoError(t, err)
	return df
}

func newWriterFactory(dir string) (WriterFactory, *int) {
	n := 0
	return func() (string, error) {
		n++
		return filepath.Join(dir, "out-"+strconv.Itoa(n)), nil
	}, &n
}

func TestCompactMergesSingleRange(t *testing.T) {
	dir := t.TempDir()
	f := diskFragmentOf(t, dir, "in-1", []cell.Cell{
		mkCell("a", "x", 1, "1"),
		mkCell("b", "x", 1, "2"),
	})

	wf, _ := newWriterFactory(dir)
	outputs, err := Compact([]RangeFragments{
		{Rows: cell.UnboundedRow(), Fragments: []fragment.Fragment{f}},
	}, 0, wf)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.NotEqual(t, EmptyURI, outputs[0].URI)
}

func TestCompactMapsFullyErasedRangeToEmptySentinel(t *testing.T) {
	dir := t.TempDir()
	set := mkCell("a", "x", 1, "1")
	erase := mkCell("a", "x", 1, "")
	erase.Erased = true

	f := diskFragmentOf(t, dir, "in-1", []cell.Cell{set, erase})

	wf, _ := newWriterFactory(dir)
	outputs, err := Compact([]RangeFragments{
		{Rows: cell.UnboundedRow(), Fragments: []fragment.Fragment{f}},
	}, 0, wf)
	require.NoError(t, err)
	require.Equal(t, EmptyURI, outputs[0].URI)
}

func TestCompactSplitsOutputAtSizeThreshold(t *testing.T) {
	dir := t.TempDir()

	var cells []cell.Cell
	rows := make([]string, 0, 26*26)
	for a := byte('a'); a <= 'z'; a++ {
		for b := byte('a'); b <= 'z'; b++ {
			rows = append(rows, string([]byte{a, b}))
		}
	}
	for i, r := range rows {
		cells = append(cells, mkCell(r, "x", 1, strconv.Itoa(i)))
	}
	f := diskFragmentOf(t, dir, "in-1", cells)

	groups := make([]RangeFragments, 0, len(rows))
	for _, r := range rows {
		lo := []byte(r)
		hi := append(append([]byte{}, r...), 0xff)
		groups = append(groups, RangeFragments{
			Rows:      cell.RowInterval{Lo: lo, Hi: hi, LoInclusive: true, HiInclusive: true},
			Fragments: []fragment.Fragment{f},
		})
	}

	wf, n := newWriterFactory(dir)
	outputs, err := Compact(groups, 4096, wf)
	require.NoError(t, err)
	require.Len(t, outputs, len(rows))

	uris := make(map[string]bool)
	for _, o := range outputs {
		require.NotEqual(t, EmptyURI, o.URI)
		uris[o.URI] = true
	}
	require.Greater(t, len(uris), 1)
	require.GreaterOrEqual(t, *n, len(uris))
}
