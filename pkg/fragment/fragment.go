// Package fragment implements the immutable on-disk and mutable
// in-memory cell containers an LSM tablet stack is made of.
package fragment

import (
	"github.com/kdi-go/kdi/pkg/cell"
)

// Fragment is an ordered, predicate-scannable cell container. A disk
// Fragment is immutable; a MemFragment mutates but still satisfies this
// interface for merge purposes. Scan is lazy and restartable from any
// (row, column, timestamp) cursor; a single Fragment instance need not
// support concurrent Scan calls from multiple goroutines sharing one
// CellIterator, but distinct CellIterators over the same Fragment run
// concurrently.
type Fragment interface {
	// URI identifies the fragment for FileTracker/metastore purposes.
	// In-memory fragments return "".
	URI() string
	// Size is the fragment's byte footprint on disk (0 for MemFragment).
	Size() int64
	// EstimatedCells is an approximate cell count, used for compaction
	// and split heuristics.
	EstimatedCells() int64
	// Static is true for disk fragments, false for MemFragment — it
	// distinguishes the mutable top of the stack from everything below.
	Static() bool
	// Final is true when this fragment was produced by a compaction
	// that covered the full stack, and therefore contains no erasures.
	Final() bool
	// Scan returns a lazy cell stream in global order, intersected with
	// pred.
	Scan(pred cell.Predicate) (CellIterator, error)
}

// CellIterator is a pull-driven cursor over a cell stream. Next
// advances and reports whether a cell was produced; callers must check
// the returned bool before using the cell. Iteration is interruptible
// at any cell boundary (the caller simply stops calling Next) which is
// what makes scans cancellable by dropping the handle.
type CellIterator interface {
	Next() (cell.Cell, bool, error)
	Close() error
}

// SliceIterator adapts a pre-materialized, already-ordered cell slice
// into a CellIterator. Used by tests and by small in-memory merges.
type SliceIterator struct {
	cells []cell.Cell
	pos   int
}

// NewSliceIterator returns a CellIterator over cells, which must
// already be in global order.
func NewSliceIterator(cells []cell.Cell) *SliceIterator {
	return &SliceIterator{cells: cells}
}

func (s *SliceIterator) Next() (cell.Cell, bool, error) {
	if s.pos >= len(s.cells) {
		return cell.Cell{}, false, nil
	}
	c := s.cells[s.pos]
	s.pos++
	return c, true, nil
}

func (s *SliceIterator) Close() error { return nil }
