// Package tablet implements Tablet: a single contiguous row-range shard
// of a table, backed by an LSM stack of immutable disk fragments fed by
// a mutable MemFragment, with mutations durable through a shared
// write-ahead log before they become visible. Generalized from the
// teacher's pkg/tablet (Tablet/MemTable/SSTable/CommitLog over a nested
// row→column→version map) onto the cell-stream model in pkg/cell,
// pkg/fragment, pkg/merge, pkg/walog, and pkg/filetracker.
package tablet

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/internal/metastore"
	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/filetracker"
	"github.com/kdi-go/kdi/pkg/fragment"
	"github.com/kdi-go/kdi/pkg/kdilog"
	"github.com/kdi-go/kdi/pkg/merge"
	"github.com/kdi-go/kdi/pkg/rpcfaults"
)

// defaultCompactionThreshold is the stack size past which addFragment
// requests a background compaction.
const defaultCompactionThreshold = 5

// defaultCompactionTail is the number of static fragments (the newest
// ones, at the top of the stack) doCompaction merges in one pass.
const defaultCompactionTail = 8

var idSeq atomic.Uint64

// CompactionRequester is the Compactor's view of a Tablet — enough to
// enqueue it for background compaction. Kept as an interface so this
// package need not import pkg/compactor (which imports this one).
type CompactionRequester interface {
	RequestCompaction(t *Tablet)
}

// Options bundles the collaborators a Tablet needs at construction.
type Options struct {
	Table     string
	Rows      cell.RowInterval
	Server    string
	Store     metastore.Store
	Logger    logAppender
	Tracker   *filetracker.FileTracker
	Compactor CompactionRequester
}

// logAppender is the slice of SharedLogger a Tablet needs, named
// locally so tests can fake it without spinning up a real WAL.
type logAppender interface {
	Append(tabletID string, c cell.Cell) error
	Sync() error
}

// Tablet is one row-range shard: an LSM stack of fragments plus the
// state machine, scanner set, and compaction/split operations over it.
type Tablet struct {
	id     string
	table  string
	server string

	statusMu         sync.Mutex
	state            State
	mutationsPending bool
	configChanged    bool

	stackMu  sync.RWMutex
	rows     cell.RowInterval
	stack    []fragment.Fragment // oldest first; memFrag is always logically on top
	memFrag  *fragment.MemFragment
	stackGen uint64

	scannersMu sync.Mutex
	scanners   []weak.Pointer[Scanner]

	pendingMu       sync.Mutex
	pendingReleases []string

	logger    logAppender
	tracker   *filetracker.FileTracker
	store     metastore.Store
	compactor CompactionRequester
}

// New constructs a Tablet, loading any previously persisted fragment
// stack for (opts.Table, opts.Rows) from the metadata store and
// bringing the tablet to READY. Write-ahead log replay is a separate
// step (Recover), run by the server once every tablet on it has been
// constructed this way.
func New(opts Options) (*Tablet, error) {
	t := &Tablet{
		id:        nextTabletID(opts.Table),
		table:     opts.Table,
		server:    opts.Server,
		rows:      opts.Rows,
		state:     StateLoading,
		memFrag:   fragment.NewMemFragment(),
		logger:    opts.Logger,
		tracker:   opts.Tracker,
		store:     opts.Store,
		compactor: opts.Compactor,
	}

	if opts.Store != nil {
		configs, err := opts.Store.LoadTabletConfigs(opts.Table)
		if err != nil {
			return nil, errors.Wrapf(err, "load tablet configs for %s", opts.Table)
		}
		for _, cfg := range configs {
			if !rowsEqual(cfg.Rows, opts.Rows) {
				continue
			}
			for _, uri := range cfg.FragmentURIs {
				f, canonical, err := opts.Store.OpenTable(uri)
				if err != nil {
					return nil, errors.Wrapf(err, "open fragment %s", uri)
				}
				t.stack = append(t.stack, f)
				if t.tracker != nil {
					t.tracker.Ref(diskPath(canonical))
				}
			}
			break
		}
	}

	if err := t.transition(StateReady); err != nil {
		return nil, err
	}
	kdilog.Info("tablet loaded", kdilog.String("table", opts.Table), kdilog.Int("fragments", len(t.stack)))
	return t, nil
}

func nextTabletID(table string) string {
	n := idSeq.Add(1)
	return table + "#" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ID is the tablet's stable identity, used as the WAL's tabletID — it
// survives a split's row-range shrink (the spec's "original tablet"
// keeps serving the same ID; only the freshly split-off half gets a
// new one).
func (t *Tablet) ID() string { return t.id }

// Rows is the tablet's current row extent.
func (t *Tablet) Rows() cell.RowInterval {
	t.stackMu.RLock()
	defer t.stackMu.RUnlock()
	return t.rows
}

func rowsEqual(a, b cell.RowInterval) bool {
	return string(a.Lo) == string(b.Lo) && string(a.Hi) == string(b.Hi) &&
		a.LoInclusive == b.LoInclusive && a.HiInclusive == b.HiInclusive
}

// diskPath strips a fragment URI's "disk:" scheme prefix for FileTracker
// purposes, which operates on filesystem paths, not URIs.
func diskPath(uri string) string {
	return strings.TrimPrefix(uri, "disk:")
}

// Mutate applies a single cell mutation (set, erase via Cell.Erased, or
// insert) to the tablet: validates the row is in range, appends to the
// write-ahead log, then to the MemFragment. Mirrors the teacher's
// Tablet.Mutate WAL-then-memtable ordering, generalized from a batched
// RowMutation to the spec's single-cell operations.
func (t *Tablet) Mutate(c cell.Cell) error {
	t.stackMu.RLock()
	inRange := t.rows.Contains(c.Row)
	t.stackMu.RUnlock()
	if !inRange {
		return rpcfaults.RowNotInTablet(string(c.Row))
	}

	t.statusMu.Lock()
	if t.state == StateDestroyed || t.state == StateErrored {
		st := t.state
		t.statusMu.Unlock()
		return errors.Errorf("tablet %s is %s", t.id, st)
	}
	t.statusMu.Unlock()

	if t.logger != nil {
		if err := t.logger.Append(t.id, c); err != nil {
			return errors.Wrap(err, "append to write-ahead log")
		}
	}

	t.statusMu.Lock()
	t.mutationsPending = true
	t.statusMu.Unlock()

	t.stackMu.Lock()
	t.memFrag.Append(c)
	t.stackMu.Unlock()
	return nil
}

// MutationsPending reports whether any cell has been logged to this
// tablet since the last successful Sync.
func (t *Tablet) MutationsPending() bool {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	return t.mutationsPending
}

// Sync flushes the write-ahead log and, if the fragment stack changed
// since the last Sync, persists the tablet's TabletConfig.
func (t *Tablet) Sync() error {
	if t.logger != nil {
		if err := t.logger.Sync(); err != nil {
			return errors.Wrap(err, "sync write-ahead log")
		}
	}

	t.statusMu.Lock()
	changed := t.configChanged
	t.configChanged = false
	t.mutationsPending = false
	t.statusMu.Unlock()
	if !changed || t.store == nil {
		return nil
	}
	return t.persistConfig()
}

func (t *Tablet) persistConfig() error {
	t.stackMu.RLock()
	uris := make([]string, len(t.stack))
	for i, f := range t.stack {
		uris[i] = f.URI()
	}
	rows := t.rows
	t.stackMu.RUnlock()

	return t.store.SetTabletConfig(t.table, metastore.TabletConfig{
		Rows:         rows,
		FragmentURIs: uris,
		Server:       t.server,
	})
}

// getMergedScan snapshots the stack (disk fragments plus the live
// MemFragment on top) under lock and builds a FragmentMerge over it.
// Erasure filtering is enabled only when the bottom of the snapshot is
// a Final fragment: below it there is nothing an erasure could still be
// masking, so collapsing it is safe (the single-fragment shortcut
// spec.md §4.3 describes falls out of this naturally).
func (t *Tablet) getMergedScan(pred cell.Predicate) (*merge.Merger, error) {
	t.stackMu.RLock()
	snapshot := make([]fragment.Fragment, 0, len(t.stack)+1)
	snapshot = append(snapshot, t.stack...)
	snapshot = append(snapshot, t.memFrag)
	t.stackMu.RUnlock()

	policy := merge.Retain
	if len(snapshot) > 0 && snapshot[0].Final() {
		policy = merge.Filter
	}
	return merge.Merge(snapshot, pred, policy)
}

// Scan validates pred's row set against the tablet's extent, strips
// maxHistory (enforced by the Scanner as a post-merge cap), and opens a
// Scanner registered weakly against this tablet so a later stack change
// can reopen it in place.
func (t *Tablet) Scan(pred cell.Predicate) (*Scanner, error) {
	rows := t.Rows()
	if len(pred.Rows) > 0 && !pred.RowsSubsetOf(rows) {
		return nil, rpcfaults.RowNotInTablet("predicate rows outside tablet range")
	}
	clipped := pred.ClipRows(rows)
	maxHistory := clipped.MaxHistory
	clipped = clipped.StripHistory()

	merger, err := t.getMergedScan(clipped)
	if err != nil {
		return nil, rpcfaults.Wrap(rpcfaults.KindFragmentReadError, err, "open scan")
	}

	s := &Scanner{
		tablet:     t,
		pred:       clipped,
		maxHistory: maxHistory,
		merger:     merger,
	}
	t.registerScanner(s)
	return s, nil
}

func (t *Tablet) registerScanner(s *Scanner) {
	t.scannersMu.Lock()
	t.scanners = append(t.scanners, weak.Make(s))
	t.scannersMu.Unlock()
}

// updateScanners walks the weak scanner set, dropping expired entries
// and reopening every live scanner against the current stack — called
// after any stack change (flush, compaction, split).
func (t *Tablet) updateScanners() {
	t.scannersMu.Lock()
	live := t.scanners[:0]
	var toReopen []*Scanner
	for _, wp := range t.scanners {
		if s := wp.Value(); s != nil {
			live = append(live, wp)
			toReopen = append(toReopen, s)
		}
	}
	t.scanners = live
	t.scannersMu.Unlock()

	for _, s := range toReopen {
		s.reopen()
	}
}

func (t *Tablet) afterStackGrowth(uri string, size int) {
	if t.tracker != nil {
		t.tracker.Ref(diskPath(uri))
	}
	t.statusMu.Lock()
	t.configChanged = true
	t.statusMu.Unlock()
	if size >= defaultCompactionThreshold && t.compactor != nil {
		t.compactor.RequestCompaction(t)
	}
}

// addFragment appends f to the top of the static stack (used when a
// fragment is loaded or produced outside of this tablet's own Flush,
// e.g. by a shared compaction path).
func (t *Tablet) addFragment(f fragment.Fragment, uri string) {
	t.stackMu.Lock()
	t.stack = append(t.stack, f)
	t.stackGen++
	size := len(t.stack)
	t.stackMu.Unlock()

	t.afterStackGrowth(uri, size)
	t.updateScanners()
}

// Flush writes the MemFragment to a new disk fragment and atomically
// swaps it onto the top of the stack, clearing the buffer. A no-op if
// the buffer is empty.
func (t *Tablet) Flush() error {
	t.stackMu.RLock()
	empty := t.memFrag.EstimatedCells() == 0
	t.stackMu.RUnlock()
	if empty {
		return nil
	}
	if t.store == nil {
		return errors.New("tablet has no metadata store to allocate a data file")
	}

	path, err := t.store.GetDataFile(t.table)
	if err != nil {
		return errors.Wrap(err, "allocate data file")
	}

	t.stackMu.Lock()
	df, err := fragment.Flush(t.memFrag, path, true)
	if err != nil {
		t.stackMu.Unlock()
		return errors.Wrap(err, "flush memfragment")
	}
	t.memFrag.Clear()
	t.stack = append(t.stack, df)
	t.stackGen++
	size := len(t.stack)
	t.stackMu.Unlock()

	t.afterStackGrowth(df.URI(), size)
	t.updateScanners()
	return nil
}

// replaceFragments atomically substitutes the contiguous run of
// fragments identified by oldURIs with newFrag, then reopens every live
// scanner and releases the superseded fragments' FileTracker refs —
// only after reopen, so no scanner can still be pointing at a file
// about to be unlinked.
func (t *Tablet) replaceFragments(oldURIs []string, newFrag fragment.Fragment, newURI string) error {
	t.stackMu.Lock()
	idx, ok := findContiguousSubsequence(t.stack, oldURIs)
	if !ok {
		t.stackMu.Unlock()
		if err := t.transition(StateErrored); err != nil {
			kdilog.Error("tablet: failed to mark errored after replaceFragments mismatch", kdilog.Err(err))
		}
		return rpcfaults.ReplaceFragmentsMismatch("old fragment sequence not found contiguous in stack")
	}

	newStack := make([]fragment.Fragment, 0, len(t.stack)-len(oldURIs)+1)
	newStack = append(newStack, t.stack[:idx]...)
	newStack = append(newStack, newFrag)
	newStack = append(newStack, t.stack[idx+len(oldURIs):]...)
	t.stack = newStack
	t.stackGen++
	t.stackMu.Unlock()

	if t.tracker != nil {
		t.tracker.Ref(diskPath(newURI))
	}
	t.statusMu.Lock()
	t.configChanged = true
	t.statusMu.Unlock()

	t.updateScanners()

	if t.tracker != nil {
		for _, uri := range oldURIs {
			if err := t.tracker.Release(diskPath(uri)); err != nil {
				kdilog.Error("release superseded fragment", kdilog.String("uri", uri), kdilog.Err(err))
			}
		}
	}
	return nil
}

func findContiguousSubsequence(stack []fragment.Fragment, uris []string) (int, bool) {
	if len(uris) == 0 || len(uris) > len(stack) {
		return 0, false
	}
	for start := 0; start+len(uris) <= len(stack); start++ {
		match := true
		for j, uri := range uris {
			if stack[start+j].URI() != uri {
				match = false
				break
			}
		}
		if match {
			return start, true
		}
	}
	return 0, false
}

// compactionPriority is the count of static fragments in the stack,
// used by the Compactor's priority queue. Below two fragments there is
// nothing to compact, so priority is reported as zero.
func (t *Tablet) compactionPriority() int {
	t.stackMu.RLock()
	defer t.stackMu.RUnlock()
	n := 0
	for _, f := range t.stack {
		if f.Static() {
			n++
		}
	}
	if n < 2 {
		return 0
	}
	return n
}

// CompactionPriority exposes compactionPriority to pkg/compactor.
func (t *Tablet) CompactionPriority() int { return t.compactionPriority() }

// doCompaction merges the tail defaultCompactionTail static fragments
// (the topmost ones, reaching the bottom only when the stack holds no
// more than that) into one new disk fragment and
// swaps it in via replaceFragments. Invoked by the Compactor.
func (t *Tablet) doCompaction() error {
	if err := t.transition(StateCompacting); err != nil {
		return err
	}
	returnedToReady := false
	defer func() {
		if !returnedToReady {
			if err := t.transition(StateReady); err != nil {
				kdilog.Error("tablet: failed returning to ready after compaction", kdilog.Err(err))
			}
		}
	}()

	t.stackMu.RLock()
	n := len(t.stack)
	tailLen := defaultCompactionTail
	if tailLen > n {
		tailLen = n
	}
	start := n - tailLen
	tail := make([]fragment.Fragment, tailLen)
	copy(tail, t.stack[start:])
	includesBottom := start == 0
	t.stackMu.RUnlock()

	if tailLen < 2 {
		return nil
	}

	policy := merge.Retain
	if includesBottom {
		policy = merge.Filter
	}

	merger, err := merge.Merge(tail, cell.Unbounded(), policy)
	if err != nil {
		return rpcfaults.Wrap(rpcfaults.KindFragmentReadError, err, "open compaction merge")
	}
	defer merger.Close()

	if t.store == nil {
		return errors.New("tablet has no metadata store to allocate a compaction output file")
	}
	path, err := t.store.GetDataFile(t.table)
	if err != nil {
		return errors.Wrap(err, "allocate compaction output file")
	}
	writer, err := fragment.NewDiskFragmentWriter(path, fragment.DiskWriterOptions{Final: includesBottom, Compress: true})
	if err != nil {
		return errors.Wrap(err, "open compaction output writer")
	}

	if _, err := merge.CopyMerged(merger, 0, 0, writer); err != nil {
		_, _ = writer.Finish()
		os.Remove(path)
		return rpcfaults.Wrap(rpcfaults.KindFragmentReadError, err, "compact fragments")
	}
	if _, err := writer.Finish(); err != nil {
		os.Remove(path)
		return errors.Wrap(err, "finish compaction output")
	}

	out, canonical, err := t.store.OpenTable("disk:" + path)
	if err != nil {
		return errors.Wrap(err, "reopen compaction output")
	}

	oldURIs := make([]string, tailLen)
	for i, f := range tail {
		oldURIs[i] = f.URI()
	}

	if err := t.replaceFragments(oldURIs, out, canonical); err != nil {
		return err
	}

	if err := t.transition(StateReady); err != nil {
		return err
	}
	returnedToReady = true

	kdilog.Info("tablet compaction complete", kdilog.Int("inputs", tailLen), kdilog.String("output", path))
	return nil
}

// Close releases the tablet's resources. It does not close the shared
// logger (owned by the server, not the tablet) or release fragment
// refs (owned jointly by every tablet/scanner referencing them).
func (t *Tablet) Close() error {
	return t.transition(StateDestroyed)
}
