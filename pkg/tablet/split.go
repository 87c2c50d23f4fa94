package tablet

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/fragment"
	"github.com/kdi-go/kdi/pkg/kdilog"
)

// SplitTablet chooses a split row and, if one exists, produces a new
// Tablet covering the lower half of this tablet's row range while this
// tablet shrinks to the upper half. The two tablets share the current
// fragment stack (fragments are immutable and reference-counted); each
// independently flushes and eventually compacts down afterward. Returns
// (nil, nil) when no valid split row exists — "no change", per
// spec.md §8's boundary behavior.
func (t *Tablet) SplitTablet() (*Tablet, error) {
	if err := t.transition(StateSplitting); err != nil {
		return nil, err
	}
	returnedToReady := false
	defer func() {
		if !returnedToReady {
			if err := t.transition(StateReady); err != nil {
				kdilog.Error("tablet: failed returning to ready after split", kdilog.Err(err))
			}
		}
	}()

	t.stackMu.RLock()
	stackSnapshot := make([]fragment.Fragment, len(t.stack))
	copy(stackSnapshot, t.stack)
	rows := t.rows
	t.stackMu.RUnlock()

	splitRow, ok := chooseSplitRow(stackSnapshot, rows)
	if !ok {
		return nil, nil
	}

	lowerRows := cell.RowInterval{Lo: rows.Lo, LoInclusive: rows.LoInclusive, Hi: splitRow, HiInclusive: true}
	upperRows := cell.RowInterval{Lo: splitRow, LoInclusive: false, Hi: rows.Hi, HiInclusive: rows.HiInclusive}

	lower, err := New(Options{
		Table:     t.table,
		Rows:      lowerRows,
		Server:    t.server,
		Store:     t.store,
		Logger:    t.logger,
		Tracker:   t.tracker,
		Compactor: t.compactor,
	})
	if err != nil {
		return nil, errors.Wrap(err, "construct split-off tablet")
	}

	lower.stackMu.Lock()
	lower.stack = append(lower.stack[:0:0], stackSnapshot...)
	lower.stackMu.Unlock()
	for _, f := range stackSnapshot {
		if t.tracker != nil {
			t.tracker.Ref(diskPath(f.URI()))
		}
	}

	t.stackMu.Lock()
	t.rows = upperRows
	t.stackMu.Unlock()

	t.statusMu.Lock()
	t.configChanged = true
	t.statusMu.Unlock()
	lower.statusMu.Lock()
	lower.configChanged = true
	lower.statusMu.Unlock()

	if t.store != nil {
		if err := t.persistConfig(); err != nil {
			return nil, errors.Wrap(err, "persist shrunk tablet config")
		}
		if err := lower.persistConfig(); err != nil {
			return nil, errors.Wrap(err, "persist split-off tablet config")
		}
	}

	t.updateScanners()

	if err := t.transition(StateReady); err != nil {
		return nil, err
	}
	returnedToReady = true

	return lower, nil
}

// chooseSplitRow picks a row near the median of the largest fragment's
// distinct rows — a histogram-free approximation of the
// largest-fragment row-sampling heuristic the source tablet server
// used to pick split points. Returns ok=false when there are too few
// distinct rows to produce a non-empty lower half.
func chooseSplitRow(stack []fragment.Fragment, rows cell.RowInterval) ([]byte, bool) {
	if len(stack) == 0 {
		return nil, false
	}

	var largest fragment.Fragment
	for _, f := range stack {
		if largest == nil || f.Size() > largest.Size() {
			largest = f
		}
	}

	it, err := largest.Scan(cell.Unbounded().ClipRows(rows))
	if err != nil {
		return nil, false
	}
	defer it.Close()

	var distinctRows [][]byte
	var lastRow []byte
	for {
		c, ok, err := it.Next()
		if err != nil || !ok {
			break
		}
		if lastRow == nil || !bytes.Equal(c.Row, lastRow) {
			lastRow = append([]byte(nil), c.Row...)
			distinctRows = append(distinctRows, lastRow)
		}
	}

	if len(distinctRows) < 2 {
		return nil, false
	}

	mid := distinctRows[len(distinctRows)/2]
	if rows.LoInclusive && bytes.Equal(mid, rows.Lo) {
		return nil, false
	}
	return mid, true
}
