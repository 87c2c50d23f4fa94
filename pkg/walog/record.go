package walog

import "github.com/kdi-go/kdi/pkg/cell"

// Record is one logged mutation: a single cell destined for a named
// tablet's MemFragment. SharedLogger.Append never sets BatchID, so it
// is always zero and records of one mutation batch are not grouped;
// the engine only relies on per-cell durability.
type Record struct {
	TabletID string
	BatchID  uint64
	Cell     cell.Cell
}
