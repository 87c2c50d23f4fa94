// Package rpc implements the plain-Go-type RPC surface spec.md §6
// describes: Insert, Erase, ScanOpen/ScanMore/ScanClose, routed through
// a table's SuperTablet. Generalized from the teacher's
// tabletserver.TabletServer HTTP handlers (HandleMutate, HandleRead),
// which JSON-decoded a request body and called straight into a single
// hard-coded tablet; this keeps the same "decode request, route,
// invoke, translate result" shape but as ordinary Go calls — wire
// transport is out of scope (spec.md §1) — against the full
// scan/predicate contract and the typed faults in pkg/rpcfaults.
package rpc

import (
	"sync"
	"sync/atomic"

	"github.com/kdi-go/kdi/internal/metastore"
	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/filetracker"
	"github.com/kdi-go/kdi/pkg/kdilog"
	"github.com/kdi-go/kdi/pkg/rpcfaults"
	"github.com/kdi-go/kdi/pkg/supertablet"
	"github.com/kdi-go/kdi/pkg/tablet"
)

var scanIDSeq atomic.Uint64

// Server is the single tablet server process's RPC surface: every
// table it serves, each as one SuperTablet, plus the open-scanner
// table scanOpen/scanMore/scanClose need to track handles across
// calls.
type Server struct {
	store     metastore.Store
	logger    logAppender
	tracker   *filetracker.FileTracker
	compactor tablet.CompactionRequester

	mu     sync.RWMutex
	tables map[string]*supertablet.SuperTablet

	scansMu sync.Mutex
	scans   map[string]*scanHandle
}

type logAppender interface {
	Append(tabletID string, c cell.Cell) error
	Sync() error
}

// NewServer constructs an RPC surface backed by store for metadata,
// logger for write-ahead durability, tracker for fragment file
// lifetime, and compactor (optional) for background compaction
// scheduling.
func NewServer(store metastore.Store, logger logAppender, tracker *filetracker.FileTracker, compactor tablet.CompactionRequester) *Server {
	return &Server{
		store:     store,
		logger:    logger,
		tracker:   tracker,
		compactor: compactor,
		tables:    make(map[string]*supertablet.SuperTablet),
		scans:     make(map[string]*scanHandle),
	}
}

// tableFor returns the SuperTablet for table, lazily constructing it
// (loading any persisted tablet ranges) on first use.
func (s *Server) tableFor(table string) (*supertablet.SuperTablet, error) {
	s.mu.RLock()
	st, ok := s.tables[table]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.tables[table]; ok {
		return st, nil
	}
	st, err := supertablet.New(supertablet.Options{
		Table:     table,
		Store:     s.store,
		Logger:    s.logger,
		Tracker:   s.tracker,
		Compactor: s.compactor,
	})
	if err != nil {
		return nil, rpcfaults.Wrap(rpcfaults.KindTableDoesNotExist, err, "open table "+table)
	}
	s.tables[table] = st
	return st, nil
}

// Insert sets (row, col, ts) to value in table.
func (s *Server) Insert(table string, row, col []byte, ts int64, value []byte) error {
	st, err := s.tableFor(table)
	if err != nil {
		return err
	}
	return st.Mutate(cell.Cell{Row: row, Column: col, Timestamp: ts, Value: value})
}

// Erase writes a tombstone for (row, col, ts) in table.
func (s *Server) Erase(table string, row, col []byte, ts int64) error {
	st, err := s.tableFor(table)
	if err != nil {
		return err
	}
	return st.Mutate(cell.Cell{Row: row, Column: col, Timestamp: ts, Erased: true})
}

// scanHandle is one open scan: the aggregated SuperScanner plus the
// single-flight guard spec.md §7 requires (a scanMore already in
// flight rejects a concurrent one with ScannerBusy). delivering is a
// non-blocking CAS guard held only for the duration of the batch loop;
// mu guards closed/scanner bookkeeping separately so a concurrent
// ScanMore never blocks on the batch loop itself, it only ever sees
// delivering already set and bails out immediately.
type scanHandle struct {
	delivering atomic.Bool

	mu      sync.Mutex
	closed  bool
	scanner *supertablet.SuperScanner
}

// ScanOpen validates pred and opens a scan over table, returning an
// opaque scan id for subsequent ScanMore/ScanClose calls.
func (s *Server) ScanOpen(table string, pred cell.Predicate) (string, error) {
	if pred.TimeLo != 0 && pred.TimeHi != 0 && pred.TimeLo > pred.TimeHi {
		return "", rpcfaults.InvalidPredicate("timeLo > timeHi")
	}
	for _, iv := range pred.Rows {
		if iv.Empty() {
			return "", rpcfaults.InvalidPredicate("empty row interval")
		}
	}

	st, err := s.tableFor(table)
	if err != nil {
		return "", err
	}
	scanner, err := st.Scan(pred)
	if err != nil {
		return "", err
	}

	id := "scan#" + itoa(scanIDSeq.Add(1))
	s.scansMu.Lock()
	s.scans[id] = &scanHandle{scanner: scanner}
	s.scansMu.Unlock()
	return id, nil
}

// ScanMore pulls up to maxCells cells (or until the packed batch
// reaches maxBytes, whichever comes first; 0 means unbounded) from
// scanID, closing it after pulling the batch if closeScan is true.
// Returns the batch,
// whether the scan is now fully drained, and whether the handle was
// closed by this call.
func (s *Server) ScanMore(scanID string, maxCells, maxBytes int64, closeScan bool) (cells []cell.Cell, complete bool, closed bool, err error) {
	s.scansMu.Lock()
	h, ok := s.scans[scanID]
	s.scansMu.Unlock()
	if !ok {
		return nil, false, false, rpcfaults.ScannerExpired(scanID)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, false, false, rpcfaults.ScannerExpired(scanID)
	}
	h.mu.Unlock()

	if !h.delivering.CompareAndSwap(false, true) {
		return nil, false, false, rpcfaults.ScannerBusy(scanID)
	}
	defer h.delivering.Store(false)

	var bytesPacked int64
	done := false
	for {
		if maxCells > 0 && int64(len(cells)) >= maxCells {
			break
		}
		if maxBytes > 0 && bytesPacked >= maxBytes {
			break
		}
		c, ok, nerr := h.scanner.Next()
		if nerr != nil {
			return nil, false, false, rpcfaults.Wrap(rpcfaults.KindFragmentReadError, nerr, "scan more")
		}
		if !ok {
			done = true
			break
		}
		cells = append(cells, c)
		bytesPacked += int64(len(c.Row) + len(c.Column) + len(c.Value) + 8)
	}

	if closeScan || done {
		h.mu.Lock()
		if err := h.scanner.Close(); err != nil {
			kdilog.Error("rpc: close scanner after drain", kdilog.String("scanID", scanID), kdilog.Err(err))
		}
		h.closed = true
		h.mu.Unlock()
		s.scansMu.Lock()
		delete(s.scans, scanID)
		s.scansMu.Unlock()
		closed = true
	}
	return cells, done, closed, nil
}

// ScanClose releases scanID immediately, regardless of whether it has
// been fully drained.
func (s *Server) ScanClose(scanID string) error {
	s.scansMu.Lock()
	h, ok := s.scans[scanID]
	if ok {
		delete(s.scans, scanID)
	}
	s.scansMu.Unlock()
	if !ok {
		return rpcfaults.ScannerExpired(scanID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.scanner.Close()
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
