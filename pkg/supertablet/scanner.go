package supertablet

import (
	"sync"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/tablet"
)

// SuperScanner aggregates per-tablet Scanners across the row range a
// predicate spans, opening each tablet's Scanner lazily as the scan
// crosses a tablet boundary — spec.md §4.4's "opening a per-tablet
// Scanner lazily as the scan crosses tablet boundaries". Grounded on
// the same multi-shard aggregation shape as
// dd0wney-graphdb/pkg/lsm/iterator.go's level-merging cursor, adapted
// from merging sorted levels of one store to walking sorted tablets of
// one table.
type SuperScanner struct {
	super *SuperTablet
	pred  cell.Predicate

	mu       sync.Mutex
	tablets  []*tablet.Tablet
	idx      int
	curID    string
	consumed map[string]bool
	cur      *tablet.Scanner
	closed   bool
}

// Next pulls the next cell in row order, opening the next tablet's
// Scanner as the current one is exhausted.
func (s *SuperScanner) Next() (cell.Cell, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return cell.Cell{}, false, nil
		}
		if s.cur == nil {
			if s.idx >= len(s.tablets) {
				return cell.Cell{}, false, nil
			}
			t := s.tablets[s.idx]
			s.idx++
			if s.consumed == nil {
				s.consumed = make(map[string]bool)
			}
			s.curID = t.ID()
			sc, err := t.Scan(s.pred)
			if err != nil {
				return cell.Cell{}, false, err
			}
			s.cur = sc
		}

		c, ok, err := s.cur.Next()
		if err != nil {
			return cell.Cell{}, false, err
		}
		if ok {
			return c, true, nil
		}
		_ = s.cur.Close()
		s.consumed[s.curID] = true
		s.cur = nil
		s.curID = ""
	}
}

// Close releases the currently open per-tablet Scanner, if any, and
// marks this SuperScanner exhausted.
func (s *SuperScanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cur != nil {
		err := s.cur.Close()
		s.cur = nil
		return err
	}
	return nil
}

// refreshTabletList re-derives the tablet set from the SuperTablet's
// current vector after a split. Tablets already fully consumed (by ID,
// not position — a split changes positions but never an already-
// finished tablet's identity) are skipped; the scanner resumes at the
// first tablet it hasn't yet exhausted, which after a split includes
// the newly split-off lower half. The currently open per-tablet
// Scanner (if any) is unaffected — Tablet.updateScanners already
// reopens it directly against its own stack change.
func (s *SuperScanner) refreshTabletList() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.super.mu.RLock()
	all := s.super.tablets
	fresh := make([]*tablet.Tablet, 0, len(all))
	for _, t := range all {
		if predIntersectsRows(s.pred, t.Rows()) {
			fresh = append(fresh, t)
		}
	}
	s.super.mu.RUnlock()

	s.tablets = fresh
	s.idx = 0
	for s.idx < len(s.tablets) {
		id := s.tablets[s.idx].ID()
		if id == s.curID || !s.consumed[id] {
			break
		}
		s.idx++
	}
}
