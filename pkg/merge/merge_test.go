package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/fragment"
)

func mkCell(row, col string, ts int64, val string, erased bool) cell.Cell {
	return cell.Cell{Row: []byte(row), Column: []byte(col), Timestamp: ts, Value: []byte(val), Erased: erased}
}

func sliceFragment(cells ...cell.Cell) fragment.Fragment {
	return constFragment{cells: cells}
}

// constFragment is a tiny in-memory Fragment used only in tests; it is
// already in global order, as every Fragment implementation must be.
type constFragment struct{ cells []cell.Cell }

func (f constFragment) URI() string           { return "" }
func (f constFragment) Size() int64           { return 0 }
func (f constFragment) EstimatedCells() int64 { return int64(len(f.cells)) }
func (f constFragment) Static() bool          { return true }
func (f constFragment) Final() bool           { return false }
func (f constFragment) Scan(pred cell.Predicate) (fragment.CellIterator, error) {
	var out []cell.Cell
	for _, c := range f.cells {
		if pred.Matches(c) {
			out = append(out, c)
		}
	}
	return fragment.NewSliceIterator(out), nil
}

func drain(t *testing.T, it fragment.CellIterator) []cell.Cell {
	t.Helper()
	defer it.Close()
	var out []cell.Cell
	for {
		c, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

// TestEndToEndScenario1 matches spec.md §8 scenario 1.
func TestEndToEndScenario1(t *testing.T) {
	f := sliceFragment(
		mkCell("a", "x", 2, "2", false),
		mkCell("a", "x", 1, "1", false),
	)
	m, err := Merge([]fragment.Fragment{f}, cell.Unbounded(), Retain)
	require.NoError(t, err)
	got := drain(t, m)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].Timestamp)
	require.Equal(t, int64(1), got[1].Timestamp)
}

// TestEndToEndScenario2 matches spec.md §8 scenario 2: erasure masks
// the older version and is itself dropped once filtering is enabled.
func TestEndToEndScenario2(t *testing.T) {
	bottom := sliceFragment(
		mkCell("a", "x", 2, "2", false),
		mkCell("a", "x", 1, "1", false),
	)
	top := sliceFragment(
		mkCell("a", "x", 1, "", true),
	)
	m, err := Merge([]fragment.Fragment{bottom, top}, cell.Unbounded(), Filter)
	require.NoError(t, err)
	got := drain(t, m)
	require.Len(t, got, 1)
	require.Equal(t, int64(2), got[0].Timestamp)
	require.Equal(t, "2", string(got[0].Value))
}

func TestRetainPolicyKeepsErasure(t *testing.T) {
	bottom := sliceFragment(mkCell("a", "x", 1, "1", false))
	top := sliceFragment(mkCell("a", "x", 1, "", true))
	m, err := Merge([]fragment.Fragment{bottom, top}, cell.Unbounded(), Retain)
	require.NoError(t, err)
	got := drain(t, m)
	require.Len(t, got, 1)
	require.True(t, got[0].Erased)
}

// TestDuplicateKeyNewestWins covers invariant 1: when the same (row,
// column, timestamp) appears in multiple fragments, the topmost
// (highest stack index) occurrence masks the rest.
func TestDuplicateKeyNewestWins(t *testing.T) {
	bottom := sliceFragment(mkCell("a", "x", 1, "old", false))
	top := sliceFragment(mkCell("a", "x", 1, "new", false))
	m, err := Merge([]fragment.Fragment{bottom, top}, cell.Unbounded(), Retain)
	require.NoError(t, err)
	got := drain(t, m)
	require.Len(t, got, 1)
	require.Equal(t, "new", string(got[0].Value))
}

func TestEmptyStackYieldsNothing(t *testing.T) {
	m, err := Merge(nil, cell.Unbounded(), Retain)
	require.NoError(t, err)
	got := drain(t, m)
	require.Empty(t, got)
}

func TestCopyMergedSplitsOnMaxCells(t *testing.T) {
	f := sliceFragment(
		mkCell("a", "x", 3, "v3", false),
		mkCell("a", "x", 2, "v2", false),
		mkCell("a", "x", 1, "v1", false),
	)
	m, err := Merge([]fragment.Fragment{f}, cell.Unbounded(), Retain)
	require.NoError(t, err)

	w := &collectWriter{}
	more, err := CopyMerged(m, 2, 0, w)
	require.NoError(t, err)
	require.True(t, more)
	require.Len(t, w.cells, 2)

	more, err = CopyMerged(m, 2, 0, w)
	require.NoError(t, err)
	require.False(t, more)
	require.Len(t, w.cells, 3)
}

type collectWriter struct{ cells []cell.Cell }

func (w *collectWriter) Put(c cell.Cell) error { w.cells = append(w.cells, c); return nil }
func (w *collectWriter) CellCount() int64      { return int64(len(w.cells)) }
func (w *collectWriter) DataSize() int64       { return 0 }
func (w *collectWriter) Finish() (string, error) { return "", nil }
