package fragment

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/kdi-go/kdi/pkg/cell"
)

// MemFragment is the mutable append-buffer at the top of a tablet's
// stack. It keeps cells ordered by an encoded (row, column, timestamp)
// key in a B-tree (generalizing the teacher's single-version, row-keyed
// MemTable to the spec's multi-version cell model) so Scan never
// re-sorts: Ascend already walks the tree in the engine's global order.
type MemFragment struct {
	mu        sync.RWMutex
	tree      *btree.BTreeG[cellItem]
	sizeBytes int64
	cellCount int64
}

type cellItem struct {
	key []byte
	c   cell.Cell
}

func lessItem(a, b cellItem) bool { return bytes.Compare(a.key, b.key) < 0 }

// NewMemFragment creates an empty MemFragment.
func NewMemFragment() *MemFragment {
	return &MemFragment{tree: btree.NewG(32, lessItem)}
}

// Append adds a cell to the buffer. Safe for concurrent use; concurrent
// Appends and Scans may interleave but each Scan sees a consistent
// snapshot because the caller is expected to have captured the stack
// (and this MemFragment pointer) under the tablet's tablesMutex before
// scanning — Append itself only needs to protect the tree structure.
func (m *MemFragment) Append(c cell.Cell) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cell.EncodeKey(c.Row, c.Column, c.Timestamp)
	item := cellItem{key: key, c: c.Clone()}
	if _, exists := m.tree.ReplaceOrInsert(item); !exists {
		m.cellCount++
	}
	m.sizeBytes += estimateCellSize(c)
}

func estimateCellSize(c cell.Cell) int64 {
	return int64(len(c.Row) + len(c.Column) + len(c.Value) + 8)
}

// SizeBytes is the buffer's approximate footprint, used to decide when
// to flush.
func (m *MemFragment) SizeBytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeBytes
}

func (m *MemFragment) URI() string            { return "" }
func (m *MemFragment) Size() int64            { return m.SizeBytes() }
func (m *MemFragment) EstimatedCells() int64  { return m.cellCountSnapshot() }
func (m *MemFragment) Static() bool           { return false }
func (m *MemFragment) Final() bool            { return false }

func (m *MemFragment) cellCountSnapshot() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cellCount
}

// Scan returns a cell stream over the buffer intersected with pred. It
// snapshots the tree's cell slice up front (a cheap operation since the
// tree holds small items) so the returned iterator is stable even if
// the MemFragment is appended to afterward.
func (m *MemFragment) Scan(pred cell.Predicate) (CellIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]cell.Cell, 0, m.tree.Len())
	m.tree.Ascend(func(item cellItem) bool {
		if pred.Matches(item.c) {
			out = append(out, item.c)
		}
		return true
	})
	return NewSliceIterator(out), nil
}

// Clear empties the buffer — called after a successful flush to disk.
func (m *MemFragment) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Clear(false)
	m.sizeBytes = 0
	m.cellCount = 0
}
