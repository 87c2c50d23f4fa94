// Package walog implements SharedLogger: a single, process-wide,
// batched write-ahead log shared across every tablet on a server.
// Grounded on the teacher's pkg/tablet/commitlog.go (gob-encoded
// append + fsync + recover), generalized to multiplex many tablets'
// records into shared batches and roll segments, the way
// dd0wney-graphdb/pkg/wal's batched_wal.go and compressed_wal.go do.
package walog

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/kdilog"
)

// Options configures a SharedLogger.
type Options struct {
	Dir             string
	MaxSegmentBytes int64 // roll to a new segment past this size; 0 means 64MiB
	Compress        bool
}

// SharedLogger serializes mutations from every tablet on the server
// into a shared append-only segment sequence.
type SharedLogger struct {
	mu       sync.Mutex
	cond     *sync.Cond
	dir      string
	compress bool
	maxBytes int64

	file     *os.File
	snappyW  *snappy.Writer
	enc      *gob.Encoder
	segIndex int
	segBytes int64
	segments []string

	appended int64 // records written to the current OS file buffer
	synced   int64 // records covered by the last completed fsync
	syncing  bool

	fatalErr error
}

const defaultMaxSegmentBytes = 64 * 1024 * 1024

// Open creates or resumes a SharedLogger rooted at opts.Dir, always
// starting a fresh segment (recovery of prior segments is a separate
// step via ListSegments/Replay, run before Open by the server startup
// path per spec.md §4.2's "replay the newest unflushed segment").
func Open(opts Options) (*SharedLogger, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create wal dir %s", opts.Dir)
	}
	maxBytes := opts.MaxSegmentBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxSegmentBytes
	}

	existing, err := ListSegments(opts.Dir)
	if err != nil {
		return nil, err
	}
	nextIdx := len(existing)

	l := &SharedLogger{
		dir:      opts.Dir,
		compress: opts.Compress,
		maxBytes: maxBytes,
		segments: existing,
	}
	l.cond = sync.NewCond(&l.mu)
	if err := l.openSegment(nextIdx); err != nil {
		return nil, err
	}
	return l, nil
}

func segmentPath(dir string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("wal-%06d.log", idx))
}

func (l *SharedLogger) openSegment(idx int) error {
	path := segmentPath(l.dir, idx)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open wal segment %s", path)
	}
	l.file = f
	var w io.Writer = f
	l.snappyW = nil
	if l.compress {
		l.snappyW = snappy.NewBufferedWriter(f)
		w = l.snappyW
	}
	l.enc = gob.NewEncoder(w)
	l.segIndex = idx
	l.segBytes = 0
	l.segments = append(l.segments, path)
	return nil
}

// Append enqueues a record for tabletID in arrival order. It returns
// once the record has been encoded (handed to the OS, or with Compress
// held in the snappy writer's buffer until Sync; not necessarily fsynced);
// durability is only guaranteed after a subsequent Sync returns. A
// persistent write failure is recorded and returned from every
// subsequent Append/Sync call — per spec.md §7, it is fatal to the
// server.
func (l *SharedLogger) Append(tabletID string, c cell.Cell) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fatalErr != nil {
		return l.fatalErr
	}

	r := Record{TabletID: tabletID, Cell: c}
	if err := l.enc.Encode(r); err != nil {
		l.fatalErr = errors.Wrap(err, "wal append")
		kdilog.Error("fatal wal write failure", kdilog.Err(l.fatalErr))
		return l.fatalErr
	}
	l.appended++
	size := int64(len(r.Cell.Row) + len(r.Cell.Column) + len(r.Cell.Value) + 24)
	l.segBytes += size

	if l.segBytes >= l.maxBytes {
		if err := l.rollLocked(); err != nil {
			l.fatalErr = err
			return err
		}
	}
	return nil
}

func (l *SharedLogger) rollLocked() error {
	if l.snappyW != nil {
		if err := l.snappyW.Flush(); err != nil {
			return errors.Wrap(err, "flush wal segment on roll")
		}
	}
	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "fsync wal segment on roll")
	}
	l.synced = l.appended
	if err := l.file.Close(); err != nil {
		return errors.Wrap(err, "close wal segment on roll")
	}
	return l.openSegment(l.segIndex + 1)
}

// Sync returns only after every record appended before this call
// returns is durable. Concurrent Sync callers coalesce onto a single
// fsync: whichever goroutine finds no sync in flight performs it, and
// every other caller waiting for a target already covered returns
// without doing its own I/O.
func (l *SharedLogger) Sync() error {
	l.mu.Lock()
	if l.fatalErr != nil {
		defer l.mu.Unlock()
		return l.fatalErr
	}
	target := l.appended
	if target <= l.synced {
		l.mu.Unlock()
		return nil
	}
	for l.syncing {
		l.cond.Wait()
		if l.fatalErr != nil {
			defer l.mu.Unlock()
			return l.fatalErr
		}
		if target <= l.synced {
			l.mu.Unlock()
			return nil
		}
	}
	l.syncing = true
	batchAt := l.appended
	var flushErr error
	if l.snappyW != nil {
		flushErr = l.snappyW.Flush()
	}
	file := l.file
	l.mu.Unlock()

	var syncErr error
	if flushErr == nil {
		syncErr = file.Sync()
	} else {
		syncErr = flushErr
	}

	l.mu.Lock()
	l.syncing = false
	if syncErr != nil {
		l.fatalErr = errors.Wrap(syncErr, "wal sync")
		kdilog.Error("fatal wal sync failure", kdilog.Err(l.fatalErr))
	} else if batchAt > l.synced {
		l.synced = batchAt
	}
	err := l.fatalErr
	l.cond.Broadcast()
	l.mu.Unlock()
	return err
}

// Segments returns the rolled-and-current segment paths, oldest first.
func (l *SharedLogger) Segments() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.segments))
	copy(out, l.segments)
	return out
}

// Reclaim deletes every segment strictly older than keepFromIdx. The
// caller (the server's tablet set) must only call this once every
// tablet's MemFragment has flushed past any record that segment could
// hold, per spec.md §4.2.
func (l *SharedLogger) Reclaim(keepFromIdx int) error {
	l.mu.Lock()
	segs := append([]string(nil), l.segments...)
	l.mu.Unlock()

	for idx, path := range segs {
		if idx >= keepFromIdx {
			break
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "reclaim wal segment %s", path)
		}
	}

	l.mu.Lock()
	if keepFromIdx <= len(l.segments) {
		l.segments = l.segments[keepFromIdx:]
	}
	l.mu.Unlock()
	return nil
}

// Close fsyncs and closes the current segment.
func (l *SharedLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snappyW != nil {
		if err := l.snappyW.Flush(); err != nil {
			return err
		}
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}
