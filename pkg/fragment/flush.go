package fragment

import (
	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/cell"
)

// Flush writes every cell in m, in order, to a new disk fragment at
// path and returns the opened DiskFragment. It does not clear m; the
// caller swaps the memfragment out of the tablet stack only after the
// write succeeds, per the durable-before-visible ordering in spec.md §9.
func Flush(m *MemFragment, path string, compress bool) (*DiskFragment, error) {
	w, err := NewDiskFragmentWriter(path, DiskWriterOptions{Compress: compress})
	if err != nil {
		return nil, err
	}

	it, err := m.Scan(cell.Unbounded())
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for {
		c, ok, err := it.Next()
		if err != nil {
			return nil, errors.Wrap(err, "flush: scan memfragment")
		}
		if !ok {
			break
		}
		if err := w.Put(c); err != nil {
			return nil, err
		}
	}

	if _, err := w.Finish(); err != nil {
		return nil, err
	}
	return OpenDiskFragment(path)
}
