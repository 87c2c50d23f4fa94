// Package supertablet implements SuperTablet: a per-table collection of
// Tablets on one server, routing rows to their owning tablet by binary
// search and coordinating online splits against in-flight mutations.
// Generalized from the teacher's tabletserver.TabletServer, which kept a
// flat []*tablet.Tablet and found the owner with a linear InRange scan;
// this instead keeps the vector ordered by upper bound per spec.md §4.4
// and adds the mutation-interlock/lull gate the teacher never had.
package supertablet

import (
	"sort"
	"sync"
	"weak"

	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/internal/metastore"
	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/filetracker"
	"github.com/kdi-go/kdi/pkg/kdilog"
	"github.com/kdi-go/kdi/pkg/rpcfaults"
	"github.com/kdi-go/kdi/pkg/tablet"
)

// logAppender mirrors pkg/tablet's unexported collaborator interface so
// SuperTablet can pass the same shared logger down to every tablet it
// constructs (initial load and post-split) without importing an
// unexported type.
type logAppender interface {
	Append(tabletID string, c cell.Cell) error
	Sync() error
}

// Options bundles the collaborators shared by every Tablet a
// SuperTablet owns.
type Options struct {
	Table     string
	Store     metastore.Store
	Logger    logAppender
	Tracker   *filetracker.FileTracker
	Compactor tablet.CompactionRequester
}

// SuperTablet owns every Tablet on this server for one table, ordered
// by row-range upper bound.
type SuperTablet struct {
	table     string
	store     metastore.Store
	logger    logAppender
	tracker   *filetracker.FileTracker
	compactor tablet.CompactionRequester

	gate *mutationGate

	mu      sync.RWMutex
	tablets []*tablet.Tablet

	scannersMu sync.Mutex
	scanners   []weak.Pointer[SuperScanner]
}

// New constructs a SuperTablet and loads every persisted tablet range
// for opts.Table from the metadata store. If none exist, it bootstraps
// a single tablet covering the whole table, mirroring the teacher's
// NewTabletServer "auto-bootstrap root tablet" behavior.
func New(opts Options) (*SuperTablet, error) {
	st := &SuperTablet{
		table:     opts.Table,
		store:     opts.Store,
		logger:    opts.Logger,
		tracker:   opts.Tracker,
		compactor: opts.Compactor,
		gate:      newMutationGate(),
	}

	var ranges []cell.RowInterval
	if opts.Store != nil {
		configs, err := opts.Store.LoadTabletConfigs(opts.Table)
		if err != nil {
			return nil, errors.Wrapf(err, "load tablet configs for %s", opts.Table)
		}
		for _, cfg := range configs {
			ranges = append(ranges, cfg.Rows)
		}
	}
	if len(ranges) == 0 {
		ranges = []cell.RowInterval{cell.UnboundedRow()}
	}

	for _, rows := range ranges {
		t, err := tablet.New(tablet.Options{
			Table:     opts.Table,
			Rows:      rows,
			Store:     opts.Store,
			Logger:    opts.Logger,
			Tracker:   opts.Tracker,
			Compactor: opts.Compactor,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "load tablet for range %v", rows)
		}
		st.tablets = append(st.tablets, t)
	}
	st.sortTablets()
	kdilog.Info("supertablet loaded", kdilog.String("table", opts.Table), kdilog.Int("tablets", len(st.tablets)))
	return st, nil
}

func (st *SuperTablet) sortTablets() {
	sort.Slice(st.tablets, func(i, j int) bool {
		return lessHi(st.tablets[i].Rows(), st.tablets[j].Rows())
	})
}

func lessHi(a, b cell.RowInterval) bool {
	if a.Hi == nil {
		return false // unbounded sorts last
	}
	if b.Hi == nil {
		return true
	}
	return string(a.Hi) < string(b.Hi)
}

// findTablet locates the tablet owning row via binary search on the
// upper bound, then confirms the lower bound actually contains row
// (the row could fall in the gap before the next tablet's lower bound,
// which binary search alone cannot rule out).
func (st *SuperTablet) findTablet(row []byte) *tablet.Tablet {
	st.mu.RLock()
	defer st.mu.RUnlock()

	idx := sort.Search(len(st.tablets), func(i int) bool {
		hi := st.tablets[i].Rows().Hi
		if hi == nil {
			return true
		}
		return string(row) <= string(hi)
	})
	if idx == len(st.tablets) {
		return nil
	}
	t := st.tablets[idx]
	if t.Rows().Contains(row) {
		return t
	}
	return nil
}

// Mutate routes c to its owning tablet under a MutationInterlock, so a
// concurrent split's Lull can always reach a quiescent point.
func (st *SuperTablet) Mutate(c cell.Cell) error {
	release := st.gate.interlock()
	defer release()

	t := st.findTablet(c.Row)
	if t == nil {
		return rpcfaults.RowNotOnServer(string(c.Row))
	}
	return t.Mutate(c)
}

// Scan builds a SuperScanner over every tablet intersecting pred's row
// set, registering it weakly so a split can reopen it when it crosses
// into the rearranged range.
func (st *SuperTablet) Scan(pred cell.Predicate) (*SuperScanner, error) {
	st.mu.RLock()
	tablets := make([]*tablet.Tablet, 0, len(st.tablets))
	for _, t := range st.tablets {
		if predIntersectsRows(pred, t.Rows()) {
			tablets = append(tablets, t)
		}
	}
	st.mu.RUnlock()

	s := &SuperScanner{
		super:   st,
		pred:    pred,
		tablets: tablets,
	}
	st.registerScanner(s)
	return s, nil
}

func predIntersectsRows(pred cell.Predicate, rows cell.RowInterval) bool {
	if len(pred.Rows) == 0 {
		return true
	}
	for _, iv := range pred.Rows {
		if iv.Intersects(rows) {
			return true
		}
	}
	return false
}

func (st *SuperTablet) registerScanner(s *SuperScanner) {
	st.scannersMu.Lock()
	st.scanners = append(st.scanners, weak.Make(s))
	st.scannersMu.Unlock()
}

// updateScanners prunes expired SuperScanners and asks every live one
// to re-derive its tablet list against the current vector — called
// after a split changes tablet boundaries.
func (st *SuperTablet) updateScanners() {
	st.scannersMu.Lock()
	live := st.scanners[:0]
	var toRefresh []*SuperScanner
	for _, wp := range st.scanners {
		if s := wp.Value(); s != nil {
			live = append(live, wp)
			toRefresh = append(toRefresh, s)
		}
	}
	st.scanners = live
	st.scannersMu.Unlock()

	for _, s := range toRefresh {
		s.refreshTabletList()
	}
}

// Split acquires a MutationLull (excluding new mutations until every
// in-flight one drains), splits t, and inserts the split-off tablet
// into the vector in sorted position. Returns (nil, nil) if t had no
// valid split row — "no change".
func (st *SuperTablet) Split(t *tablet.Tablet) (*tablet.Tablet, error) {
	release := st.gate.lull()
	defer release()

	lower, err := t.SplitTablet()
	if err != nil {
		return nil, err
	}
	if lower == nil {
		return nil, nil
	}

	st.mu.Lock()
	st.tablets = append(st.tablets, lower)
	st.sortTablets()
	st.mu.Unlock()

	st.updateScanners()
	return lower, nil
}

// Tablets returns a snapshot of the current tablet vector, used by the
// Compactor to enumerate candidates and by tests.
func (st *SuperTablet) Tablets() []*tablet.Tablet {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*tablet.Tablet, len(st.tablets))
	copy(out, st.tablets)
	return out
}
