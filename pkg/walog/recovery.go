package walog

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// ListSegments returns the wal-NNNNNN.log files under dir in segment
// order.
func ListSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "list wal segments in %s", dir)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".log" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out, nil
}

// Replay decodes every Record in segment path, in order. It tolerates a
// trailing partial record (the tail of a segment that was being written
// when the server crashed) by stopping at the first decode error and
// returning the records read before it. A decode error is never
// returned, even before the first record; only a failure to open the
// segment is.
func Replay(path string, compressed bool) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open wal segment %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		r = snappy.NewReader(f)
	}
	dec := gob.NewDecoder(r)

	var records []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			// A torn trailing record from a crash mid-append; stop here
			// rather than fail recovery outright.
			break
		}
		records = append(records, rec)
	}
	return records, nil
}
