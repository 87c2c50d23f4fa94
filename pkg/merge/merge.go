// Package merge implements the k-way ordered merge over a tablet's
// fragment stack, with erasure handling, that both scans and
// compactions are built from.
package merge

import (
	"container/heap"

	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/fragment"
)

// ErasurePolicy controls how erasure (tombstone) cells are treated by
// the merge.
type ErasurePolicy int

const (
	// Retain yields erasure cells verbatim.
	Retain ErasurePolicy = iota
	// Filter suppresses erasures and any older cell they mask.
	Filter
)

// cursor wraps one fragment's iterator with its current head cell and
// the fragment's position in the stack (higher index = newer, wins
// ties).
type cursor struct {
	it        fragment.CellIterator
	head      cell.Cell
	have      bool
	stackIdx  int
}

// cursorHeap orders cursors by the engine's global cell order, and on a
// (row, column, timestamp) tie by descending stack index so the newest
// fragment's cursor surfaces first.
type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	c := cell.Compare(h[i].head, h[j].head)
	if c != 0 {
		return c < 0
	}
	return h[i].stackIdx > h[j].stackIdx
}
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)        { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merger streams the ordered, deduplicated union of a fragment stack,
// with erasures dropped under the Filter policy and kept under Retain. It is itself a fragment.CellIterator.
type Merger struct {
	heap       cursorHeap
	policy     ErasurePolicy
	pred       cell.Predicate
	suppressed bool
	suppressKey cell.Cell
	suppressTS int64
}

// Merge builds a Merger over fragments, oldest-first (fragments[0] is
// the bottom of the stack). pred should already be clipped to the
// tablet's extent by the caller.
func Merge(fragments []fragment.Fragment, pred cell.Predicate, policy ErasurePolicy) (*Merger, error) {
	m := &Merger{policy: policy, pred: pred}
	for idx, f := range fragments {
		it, err := f.Scan(pred)
		if err != nil {
			return nil, errors.Wrapf(err, "open scan on fragment %s", f.URI())
		}
		c := &cursor{it: it, stackIdx: idx}
		if err := c.advance(); err != nil {
			return nil, err
		}
		if c.have {
			m.heap = append(m.heap, c)
		} else {
			it.Close()
		}
	}
	heap.Init(&m.heap)
	return m, nil
}

func (c *cursor) advance() error {
	v, ok, err := c.it.Next()
	if err != nil {
		return errors.Wrap(err, "fragment read")
	}
	c.head, c.have = v, ok
	return nil
}

// Next returns the next cell in global order across the merged
// fragments, applying the erasure policy and stack-index tie-breaking
// (newest wins, older duplicates at the same key are skipped).
func (m *Merger) Next() (cell.Cell, bool, error) {
	for m.heap.Len() > 0 {
		top := m.heap[0]
		out := top.head

		// Advance every cursor whose head equals out's (row, column,
		// timestamp) — duplicates are collapsed, keeping the one from
		// the highest stack index, which the heap ordering already
		// surfaced first.
		for m.heap.Len() > 0 && cell.Compare(m.heap[0].head, out) == 0 {
			c := m.heap[0]
			if err := c.advance(); err != nil {
				return cell.Cell{}, false, err
			}
			if c.have {
				heap.Fix(&m.heap, 0)
			} else {
				heap.Pop(&m.heap)
				c.it.Close()
			}
		}

		if m.policy == Filter {
			if m.suppressed && cell.SameKey(out, m.suppressKey) && out.Timestamp <= m.suppressTS {
				continue
			}
			m.suppressed = false
			if out.Erased {
				m.suppressed = true
				m.suppressKey = out
				m.suppressTS = out.Timestamp
				continue
			}
		}

		return out, true, nil
	}
	return cell.Cell{}, false, nil
}

// Close releases every underlying fragment iterator still open.
func (m *Merger) Close() error {
	var firstErr error
	for _, c := range m.heap {
		if err := c.it.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.heap = nil
	return firstErr
}
