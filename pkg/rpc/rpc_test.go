package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kdi-go/kdi/internal/metastore"
	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/filetracker"
	"github.com/kdi-go/kdi/pkg/rpcfaults"
)

type fakeLogger struct{}

func (fakeLogger) Append(tabletID string, c cell.Cell) error { return nil }
func (fakeLogger) Sync() error                               { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := metastore.NewInMemoryStore(t.TempDir())
	return NewServer(store, fakeLogger{}, filetracker.New(), nil)
}

func TestInsertThenScanSeesCell(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Insert("users", []byte("a"), []byte("x"), 1, []byte("1")))

	id, err := s.ScanOpen("users", cell.Unbounded())
	require.NoError(t, err)

	cells, complete, closed, err := s.ScanMore(id, 0, 0, false)
	require.NoError(t, err)
	require.True(t, complete)
	require.True(t, closed)
	require.Len(t, cells, 1)
	require.Equal(t, "1", string(cells[0].Value))
}

func TestEraseMasksCell(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Insert("users", []byte("a"), []byte("x"), 1, []byte("1")))
	require.NoError(t, s.Erase("users", []byte("a"), []byte("x"), 1))

	id, err := s.ScanOpen("users", cell.Unbounded())
	require.NoError(t, err)
	cells, _, _, err := s.ScanMore(id, 0, 0, true)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	require.True(t, cells[0].Erased)
}

func TestScanMoreRejectsConcurrentCall(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 500; i++ {
		require.NoError(t, s.Insert("users", []byte("a"), []byte("x"), int64(i+1), []byte("1")))
	}

	id, err := s.ScanOpen("users", cell.Unbounded())
	require.NoError(t, err)

	// Hold the handle busy the way an in-flight ScanMore would, then
	// fire a second call from its own goroutine: it must come back with
	// ScannerBusy immediately rather than blocking on h.mu until the
	// flag clears, which is exactly the bug a mutex-guarded delivering
	// flag used to have.
	s.scansMu.Lock()
	h := s.scans[id]
	s.scansMu.Unlock()
	require.True(t, h.delivering.CompareAndSwap(false, true), "handle should start idle")

	errCh := make(chan error, 1)
	go func() {
		_, _, _, err := s.ScanMore(id, 0, 0, false)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		require.Error(t, err)
		require.True(t, rpcfaults.Is(err, rpcfaults.KindScannerBusy))
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent ScanMore blocked instead of failing fast with ScannerBusy")
	}

	h.delivering.Store(false)
}

// TestScanMoreConcurrentCallersSplitOneSuccess drives two real
// goroutines against the same scan handle without any manual flag
// poking: at most one may observe the batch, the other must see
// ScannerBusy, and neither may block waiting on the other.
func TestScanMoreConcurrentCallersSplitOneSuccess(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 2000; i++ {
		require.NoError(t, s.Insert("users", []byte("a"), []byte("x"), int64(i+1), []byte("1")))
	}

	id, err := s.ScanOpen("users", cell.Unbounded())
	require.NoError(t, err)

	start := make(chan struct{})
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, _, _, err := s.ScanMore(id, 0, 0, false)
			results <- err
		}()
	}
	close(start)

	var busy, ok int
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			switch {
			case err == nil:
				ok++
			case rpcfaults.Is(err, rpcfaults.KindScannerBusy):
				busy++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("a concurrent ScanMore call never returned")
		}
	}
	require.Equal(t, 1, ok, "exactly one concurrent caller should have served the batch")
	require.Equal(t, 1, busy, "the other concurrent caller should have been rejected as busy")
}

func TestScanMoreOnUnknownIDReturnsExpired(t *testing.T) {
	s := newTestServer(t)
	_, _, _, err := s.ScanMore("nope", 0, 0, false)
	require.Error(t, err)
	require.True(t, rpcfaults.Is(err, rpcfaults.KindScannerExpired))
}

func TestScanOpenRejectsInvalidPredicate(t *testing.T) {
	s := newTestServer(t)
	pred := cell.Predicate{Rows: []cell.RowInterval{{Lo: []byte("z"), Hi: []byte("a"), LoInclusive: true, HiInclusive: true}}}
	_, err := s.ScanOpen("users", pred)
	require.Error(t, err)
	require.True(t, rpcfaults.Is(err, rpcfaults.KindInvalidPredicate))
}
