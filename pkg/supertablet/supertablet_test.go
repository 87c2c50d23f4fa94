package supertablet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdi-go/kdi/internal/metastore"
	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/filetracker"
)

type fakeLogger struct{}

func (fakeLogger) Append(tabletID string, c cell.Cell) error { return nil }
func (fakeLogger) Sync() error                               { return nil }

func mkCell(row, col string, ts int64, val string) cell.Cell {
	return cell.Cell{Row: []byte(row), Column: []byte(col), Timestamp: ts, Value: []byte(val)}
}

func newTestSuper(t *testing.T) *SuperTablet {
	t.Helper()
	store := metastore.NewInMemoryStore(t.TempDir())
	st, err := New(Options{
		Table:   "users",
		Store:   store,
		Logger:  fakeLogger{},
		Tracker: filetracker.New(),
	})
	require.NoError(t, err)
	return st
}

func drain(t *testing.T, s *SuperScanner) []cell.Cell {
	t.Helper()
	var out []cell.Cell
	for {
		c, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

func TestBootstrapsSingleUnboundedTablet(t *testing.T) {
	st := newTestSuper(t)
	require.Len(t, st.Tablets(), 1)
	require.Nil(t, st.Tablets()[0].Rows().Hi)
}

func TestMutateRoutesToOwningTablet(t *testing.T) {
	st := newTestSuper(t)
	require.NoError(t, st.Mutate(mkCell("a", "x", 1, "1")))
	require.NoError(t, st.Mutate(mkCell("z", "x", 1, "2")))

	s, err := st.Scan(cell.Unbounded())
	require.NoError(t, err)
	cells := drain(t, s)
	require.Len(t, cells, 2)
}

func TestSplitThenScanSeesBothHalves(t *testing.T) {
	st := newTestSuper(t)
	for _, r := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		require.NoError(t, st.Mutate(mkCell(r, "x", 1, "v")))
	}
	require.NoError(t, st.Tablets()[0].Flush())

	lower, err := st.Split(st.Tablets()[0])
	require.NoError(t, err)

	if lower == nil {
		t.Skip("no split row chosen for this sample")
	}
	require.Len(t, st.Tablets(), 2)

	s, err := st.Scan(cell.Unbounded())
	require.NoError(t, err)
	cells := drain(t, s)
	require.Len(t, cells, 10)
}

func TestScanOutsideAnyTabletRangeYieldsNothing(t *testing.T) {
	st := newTestSuper(t)
	pred := cell.Predicate{Rows: []cell.RowInterval{{Lo: []byte("x"), Hi: []byte("y"), LoInclusive: true, HiInclusive: true}}}
	s, err := st.Scan(pred)
	require.NoError(t, err)
	cells := drain(t, s)
	require.Empty(t, cells)
}
