package merge

import (
	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/fragment"
)

// CopyMerged streams up to maxCells cells (or until dataSize reaches
// maxBytes, whichever comes first) from it into w, and returns true iff
// more output remains to be copied in a subsequent call. This is the
// compaction workhorse: Tablet.doCompaction and compactor.Compact call
// it once with no limits (0, 0), copying the whole merge in one call.
func CopyMerged(it fragment.CellIterator, maxCells, maxBytes int64, w fragment.FragmentWriter) (bool, error) {
	var cells, bytesWritten int64
	for {
		if maxCells > 0 && cells >= maxCells {
			return true, nil
		}
		if maxBytes > 0 && bytesWritten >= maxBytes {
			return true, nil
		}

		c, ok, err := it.Next()
		if err != nil {
			return false, errors.Wrap(err, "copy merged: read")
		}
		if !ok {
			return false, nil
		}
		if err := w.Put(c); err != nil {
			return false, errors.Wrap(err, "copy merged: write")
		}
		cells++
		bytesWritten += int64(len(c.Row) + len(c.Column) + len(c.Value) + 8)
	}
}
