package compactor

import (
	"os"

	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/fragment"
	"github.com/kdi-go/kdi/pkg/merge"
)

// EmptyURI is the sentinel output URI for a range whose merge produced
// no cells at all (every input cell was an erasure with nothing left
// beneath it) — spec.md §4.6's "full erasure" case.
const EmptyURI = "empty:"

// OutputSplitSize is the byte threshold (1 GiB) past which the
// standalone Compact path cuts to a new output file. Named after the
// OUTPUT_SPLIT_SIZE constant spec.md §4.6 references.
const OutputSplitSize int64 = 1 << 30

// RangeFragments is one row range's compaction input: the fragments
// covering it, already ordered oldest-first.
type RangeFragments struct {
	Rows      cell.RowInterval
	Fragments []fragment.Fragment
}

// RangeOutput is the resolved output location for one input range.
type RangeOutput struct {
	Rows cell.RowInterval
	URI  string
}

// WriterFactory allocates new output fragment files, named the way
// metastore.Store.GetDataFile does.
type WriterFactory func() (path string, err error)

// Compact merges each range's fragments independently, in row order,
// packing consecutive ranges' output into the same file until its byte
// size crosses OutputSplitSize, then cuts to a new one — spec.md §4.6's
// "every non-empty range in a chunk is bound to the same output file
// URI". Ranges whose merge yields zero cells map to EmptyURI rather
// than occupying a chunk slot.
func Compact(groups []RangeFragments, splitSize int64, newWriter WriterFactory) ([]RangeOutput, error) {
	if splitSize <= 0 {
		splitSize = OutputSplitSize
	}

	outputs := make([]RangeOutput, len(groups))
	var (
		writer     fragment.FragmentWriter
		writerPath string
		chunkEmpty = true
	)

	finishChunk := func() error {
		if writer == nil {
			return nil
		}
		path, err := writer.Finish()
		if err != nil {
			return errors.Wrap(err, "finish compaction chunk")
		}
		if chunkEmpty {
			// Every range routed to this chunk turned out empty (can
			// happen if a later range's merge also yields nothing); no
			// range claimed the URI, so the file is dead weight.
			os.Remove(path)
		}
		writer = nil
		writerPath = ""
		return nil
	}

	for i, g := range groups {
		merger, err := merge.Merge(g.Fragments, cell.Unbounded().ClipRows(g.Rows), merge.Filter)
		if err != nil {
			return nil, errors.Wrapf(err, "open merge for range %d", i)
		}

		if writer == nil {
			path, err := newWriter()
			if err != nil {
				merger.Close()
				return nil, errors.Wrap(err, "allocate compaction output")
			}
			writer, err = fragment.NewDiskFragmentWriter(path, fragment.DiskWriterOptions{Compress: true})
			if err != nil {
				merger.Close()
				return nil, errors.Wrap(err, "open compaction writer")
			}
			writerPath = path
			chunkEmpty = true
		}

		before := writer.CellCount()
		if _, err := merge.CopyMerged(merger, 0, 0, writer); err != nil {
			merger.Close()
			return nil, errors.Wrapf(err, "compact range %d", i)
		}
		merger.Close()
		wroteAny := writer.CellCount() > before

		if wroteAny {
			chunkEmpty = false
			outputs[i] = RangeOutput{Rows: g.Rows, URI: "disk:" + writerPath}
		} else {
			outputs[i] = RangeOutput{Rows: g.Rows, URI: EmptyURI}
		}

		if writer.DataSize() >= splitSize {
			if err := finishChunk(); err != nil {
				return nil, err
			}
		}
	}

	if err := finishChunk(); err != nil {
		return nil, err
	}
	return outputs, nil
}
