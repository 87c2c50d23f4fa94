package fragment

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/cell"
)

// FragmentWriter accumulates cells for a new disk fragment. Put must be
// called with cells in global order — callers (FragmentMerge,
// Flush) already produce them that way.
type FragmentWriter interface {
	Put(c cell.Cell) error
	CellCount() int64
	DataSize() int64
	// Finish flushes and fsyncs the fragment file, then closes it and
	// returns its path. Durable-before-visible: callers must not make
	// the fragment visible in a tablet stack until Finish returns.
	Finish() (string, error)
}

// WriterFactory opens new FragmentWriters for a table's data directory.
// Grounded on spec.md §6's "to fragment writer factory" collaborator.
type WriterFactory interface {
	Start(schema string, groupIndex int) (FragmentWriter, error)
}

// DiskWriterOptions configures a disk fragment writer.
type DiskWriterOptions struct {
	// Final marks the fragment as erasure-free (produced by a
	// full-stack compaction).
	Final bool
	// Compress snappy-frames the cell stream after the header.
	Compress bool
}

type diskFragmentWriter struct {
	path       string
	file       *os.File
	snappyW    *snappy.Writer
	enc        *gob.Encoder
	cellCount  int64
	dataSize   int64
	final      bool
	compressed bool
	headerAt   int64
}

// NewDiskFragmentWriter creates a new fragment file at path. The header
// is written with a placeholder cell count / size and rewritten by
// Finish once the true totals are known.
func NewDiskFragmentWriter(path string, opts DiskWriterOptions) (FragmentWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create fragment %s", path)
	}

	w := &diskFragmentWriter{path: path, file: f, final: opts.Final, compressed: opts.Compress}

	if err := writeFragmentHeader(f, fragmentHeader{Final: opts.Final, Compressed: opts.Compress}); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "write fragment header")
	}

	var out io.Writer = f
	if opts.Compress {
		w.snappyW = snappy.NewBufferedWriter(f)
		out = w.snappyW
	}
	w.enc = gob.NewEncoder(out)
	return w, nil
}

func (w *diskFragmentWriter) Put(c cell.Cell) error {
	if err := w.enc.Encode(c); err != nil {
		return errors.Wrap(err, "write fragment cell")
	}
	w.cellCount++
	w.dataSize += int64(len(c.Row) + len(c.Column) + len(c.Value) + 8)
	return nil
}

func (w *diskFragmentWriter) CellCount() int64 { return w.cellCount }
func (w *diskFragmentWriter) DataSize() int64  { return w.dataSize }

// Finish flushes any buffered compressed output, fsyncs the file, then
// rewrites the header in place with the final cell count / size before
// closing — the write-before-fsync-before-visible ordering spec.md §9
// calls for. The header's fixed-width binary encoding guarantees this
// in-place rewrite never changes its length, however large CellCount or
// DataSize grow.
func (w *diskFragmentWriter) Finish() (string, error) {
	if w.snappyW != nil {
		if err := w.snappyW.Flush(); err != nil {
			return "", errors.Wrap(err, "flush compressed fragment")
		}
	}
	if err := w.file.Sync(); err != nil {
		return "", errors.Wrap(err, "fsync fragment")
	}

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return "", errors.Wrap(err, "seek fragment header")
	}
	if err := writeFragmentHeader(w.file, fragmentHeader{
		Final:      w.final,
		Compressed: w.compressed,
		CellCount:  w.cellCount,
		DataSize:   w.dataSize,
	}); err != nil {
		return "", errors.Wrap(err, "rewrite fragment header")
	}
	if err := w.file.Sync(); err != nil {
		return "", errors.Wrap(err, "fsync fragment header")
	}
	if err := w.file.Close(); err != nil {
		return "", errors.Wrap(err, "close fragment")
	}
	return w.path, nil
}

// DiskWriterFactory creates fragment files rooted at Dir.
type DiskWriterFactory struct {
	Dir      string
	Compress bool
	next     func() string
}

// NewDiskWriterFactory returns a factory that names fragments with
// nextPath (typically metastore.Store.GetDataFile).
func NewDiskWriterFactory(dir string, compress bool, nextPath func() string) *DiskWriterFactory {
	return &DiskWriterFactory{Dir: dir, Compress: compress, next: nextPath}
}

func (f *DiskWriterFactory) Start(schema string, groupIndex int) (FragmentWriter, error) {
	return NewDiskFragmentWriter(f.next(), DiskWriterOptions{Compress: f.Compress})
}
