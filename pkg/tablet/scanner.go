package tablet

import (
	"bytes"
	"sync"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/kdilog"
	"github.com/kdi-go/kdi/pkg/merge"
	"github.com/kdi-go/kdi/pkg/rpcfaults"
)

// Scanner is one materialization of a merge stream over a snapshot of
// its tablet's fragment stack. The tablet holds scanners only weakly
// (see tablet.go's registerScanner/updateScanners): a scanner that the
// client has dropped can be collected without the tablet keeping it
// alive, matching spec.md §4.5/§9's weak scanner set.
type Scanner struct {
	tablet     *Tablet
	pred       cell.Predicate
	maxHistory int

	mu            sync.Mutex
	merger        *merge.Merger
	delivering    bool
	closed        bool
	reopenPending bool
	skipUntil     *cell.Cell

	lastRow       []byte
	lastColumn    []byte
	lastTimestamp int64

	historyRow    []byte
	historyColumn []byte
	historyCount  int
}

// Next returns the next cell passing the scanner's predicate and
// history cap, or ok=false at end of stream. Concurrent calls on the
// same Scanner are rejected with ScannerBusy rather than serialized —
// per spec.md §7, the caller is expected to retry, not block.
func (s *Scanner) Next() (cell.Cell, bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return cell.Cell{}, false, nil
	}
	if s.delivering {
		s.mu.Unlock()
		return cell.Cell{}, false, rpcfaults.ScannerBusy("scan already in progress")
	}
	s.delivering = true
	merger := s.merger
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.delivering = false
		pending := s.reopenPending
		s.reopenPending = false
		s.mu.Unlock()
		if pending {
			s.reopen()
		}
	}()

	for {
		c, ok, err := merger.Next()
		if err != nil {
			return cell.Cell{}, false, rpcfaults.Wrap(rpcfaults.KindFragmentReadError, err, "scan fragment")
		}
		if !ok {
			return cell.Cell{}, false, nil
		}

		s.mu.Lock()
		if s.skipUntil != nil {
			if cell.Compare(c, *s.skipUntil) <= 0 {
				s.mu.Unlock()
				continue
			}
			s.skipUntil = nil
		}
		s.lastRow = append([]byte(nil), c.Row...)
		s.lastColumn = append([]byte(nil), c.Column...)
		s.lastTimestamp = c.Timestamp
		s.mu.Unlock()

		if !s.historyAllows(c) {
			continue
		}
		return c, true, nil
	}
}

func (s *Scanner) historyAllows(c cell.Cell) bool {
	if s.maxHistory <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !bytes.Equal(c.Row, s.historyRow) || !bytes.Equal(c.Column, s.historyColumn) {
		s.historyRow = append([]byte(nil), c.Row...)
		s.historyColumn = append([]byte(nil), c.Column...)
		s.historyCount = 0
	}
	s.historyCount++
	return s.historyCount <= s.maxHistory
}

// reopen rebuilds the scanner's merge stream against the tablet's
// current stack, resuming just past the last cell delivered. Invoked by
// the tablet after any stack change. If a batch is actively being
// delivered, the reopen is deferred until that batch completes (Next's
// defer drains s.reopenPending).
func (s *Scanner) reopen() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.delivering {
		s.reopenPending = true
		s.mu.Unlock()
		return
	}
	var cursor *cell.Cell
	if s.lastRow != nil {
		cursor = &cell.Cell{Row: s.lastRow, Column: s.lastColumn, Timestamp: s.lastTimestamp}
	}
	pred := s.pred
	s.mu.Unlock()

	merger, err := s.tablet.getMergedScan(pred)
	if err != nil {
		kdilog.Error("scanner reopen failed", kdilog.Err(err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		merger.Close()
		return
	}
	old := s.merger
	s.merger = merger
	s.skipUntil = cursor
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Close releases the scanner's underlying fragment handles. The next
// Next call (if any) returns ok=false, the cancellation contract
// spec.md §5 describes.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.merger != nil {
		return s.merger.Close()
	}
	return nil
}
