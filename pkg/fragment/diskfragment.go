package fragment

import (
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/cell"
)

// fragmentHeader is the first, fixed-width record in every disk
// fragment file, written and read with encoding/binary rather than gob
// so that Finish can rewrite it in place once the true totals are
// known without ever changing its on-disk length (gob's varint
// encoding of CellCount/DataSize would grow past the placeholder
// zero-value's length once either crosses 64, corrupting the cell
// stream that follows). Final records whether the fragment was
// produced by a compaction that covered the full stack (and therefore
// holds no erasures); Compressed records whether the remaining records
// are snappy-framed.
type fragmentHeader struct {
	Final      bool
	Compressed bool
	CellCount  int64
	DataSize   int64
}

// fragmentHeaderSize is the fixed byte length of an encoded
// fragmentHeader: 1 byte Final + 1 byte Compressed + 8 bytes CellCount
// + 8 bytes DataSize.
const fragmentHeaderSize = 18

func writeFragmentHeader(w io.Writer, hdr fragmentHeader) error {
	var buf [fragmentHeaderSize]byte
	if hdr.Final {
		buf[0] = 1
	}
	if hdr.Compressed {
		buf[1] = 1
	}
	binary.BigEndian.PutUint64(buf[2:10], uint64(hdr.CellCount))
	binary.BigEndian.PutUint64(buf[10:18], uint64(hdr.DataSize))
	_, err := w.Write(buf[:])
	return err
}

func readFragmentHeader(r io.Reader) (fragmentHeader, error) {
	var buf [fragmentHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fragmentHeader{}, err
	}
	return fragmentHeader{
		Final:      buf[0] != 0,
		Compressed: buf[1] != 0,
		CellCount:  int64(binary.BigEndian.Uint64(buf[2:10])),
		DataSize:   int64(binary.BigEndian.Uint64(buf[10:18])),
	}, nil
}

// DiskFragment is an immutable, file-backed Fragment. Distinct Scan
// calls reopen the file independently (the teacher's ReadSSTable does
// the same for the same reason: a shared *os.File cursor would make
// concurrent scans interfere with each other).
type DiskFragment struct {
	path   string
	header fragmentHeader
}

// OpenDiskFragment opens an existing fragment file and reads its
// header, leaving the cell stream itself unread until Scan is called.
func OpenDiskFragment(path string) (*DiskFragment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open fragment %s", path)
	}
	defer f.Close()

	hdr, err := readFragmentHeader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read fragment header %s", path)
	}
	return &DiskFragment{path: path, header: hdr}, nil
}

func (d *DiskFragment) URI() string           { return "disk:" + d.path }
func (d *DiskFragment) Path() string          { return d.path }
func (d *DiskFragment) Size() int64           { return d.header.DataSize }
func (d *DiskFragment) EstimatedCells() int64 { return d.header.CellCount }
func (d *DiskFragment) Static() bool          { return true }
func (d *DiskFragment) Final() bool           { return d.header.Final }

// Scan opens an independent read handle over the fragment and streams
// cells matching pred in file order, which is already the engine's
// global cell order.
func (d *DiskFragment) Scan(pred cell.Predicate) (CellIterator, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open fragment %s for scan", d.path)
	}

	// Consume the fixed-width header first, unwrapped — it was written
	// directly to the file, never through the snappy framing that only
	// covers the cell stream that follows it.
	if _, err := readFragmentHeader(f); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "re-read fragment header %s", d.path)
	}

	var r io.Reader = f
	if d.header.Compressed {
		r = snappy.NewReader(f)
	}
	dec := gob.NewDecoder(r)

	return &diskCellIterator{file: f, dec: dec, pred: pred}, nil
}

type diskCellIterator struct {
	file *os.File
	dec  *gob.Decoder
	pred cell.Predicate
}

func (it *diskCellIterator) Next() (cell.Cell, bool, error) {
	for {
		var c cell.Cell
		err := it.dec.Decode(&c)
		if err == io.EOF {
			return cell.Cell{}, false, nil
		}
		if err != nil {
			return cell.Cell{}, false, errors.Wrap(err, "decode fragment cell")
		}
		if it.pred.Matches(c) {
			return c, true, nil
		}
	}
}

func (it *diskCellIterator) Close() error {
	return it.file.Close()
}
