// Package compactor implements the background compaction scheduler:
// a priority queue of tablets keyed by static-fragment count, a worker
// loop that drives Tablet.DoCompaction, a Pause/Resume gate for loaders
// and splits, and the standalone multi-range Compact path used by
// server-level compaction scheduling. Generalized from the teacher's
// one-shot tablet.Compact function (which merged a fixed file list with
// no scheduling at all) around a priority queue over tablets, grounded
// on original_source/src/cc/kdi/server/Compactor.cc's worker/queue
// shape.
package compactor

import (
	"container/heap"
	"sync"

	"github.com/kdi-go/kdi/pkg/kdilog"
	"github.com/kdi-go/kdi/pkg/tablet"
)

// tabletItem is one entry in the priority queue: a tablet plus its heap
// index. No priority is stored; the queue's ordering reads each tablet's
// CompactionPriority afresh.
type tabletItem struct {
	t     *tablet.Tablet
	index int
}

type tabletQueue []*tabletItem

func (q tabletQueue) Len() int { return len(q) }
func (q tabletQueue) Less(i, j int) bool {
	return q[i].t.CompactionPriority() > q[j].t.CompactionPriority()
}
func (q tabletQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *tabletQueue) Push(x any) {
	item := x.(*tabletItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *tabletQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// Compactor is a bounded worker pool draining a priority queue of
// tablets requesting compaction. Duplicates collapse: requesting
// compaction for a tablet already queued is a no-op.
type Compactor struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    tabletQueue
	queued   map[*tablet.Tablet]*tabletItem
	paused   bool
	pauseCnt int
	running  int
	stopped  bool
}

// New constructs a Compactor with the given worker count.
func New(workers int) *Compactor {
	c := &Compactor{
		queued: make(map[*tablet.Tablet]*tabletItem),
	}
	c.cond = sync.NewCond(&c.mu)
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		go c.loop()
	}
	return c
}

// RequestCompaction implements tablet.CompactionRequester: enqueues t,
// collapsing duplicate requests for a tablet already pending.
func (c *Compactor) RequestCompaction(t *tablet.Tablet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.queued[t]; ok {
		return
	}
	item := &tabletItem{t: t}
	heap.Push(&c.queue, item)
	c.queued[t] = item
	c.cond.Broadcast()
}

// Pause blocks the worker loop from starting new compactions and waits
// for any in-progress one to finish, returning a release func. Used by
// tablet loaders and splits, which must not race a compaction touching
// the same stack.
func (c *Compactor) Pause() func() {
	c.mu.Lock()
	c.pauseCnt++
	c.paused = true
	for c.running > 0 {
		c.cond.Wait()
	}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.pauseCnt--
		if c.pauseCnt == 0 {
			c.paused = false
			c.cond.Broadcast()
		}
		c.mu.Unlock()
	}
}

// Stop terminates every worker goroutine after its current compaction
// (if any) finishes.
func (c *Compactor) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Compactor) loop() {
	for {
		c.mu.Lock()
		for (c.paused || c.queue.Len() == 0) && !c.stopped {
			c.cond.Wait()
		}
		if c.stopped {
			c.mu.Unlock()
			return
		}
		item := heap.Pop(&c.queue).(*tabletItem)
		delete(c.queued, item.t)
		c.running++
		c.mu.Unlock()

		if err := item.t.DoCompaction(); err != nil {
			kdilog.Error("compactor: compaction failed", kdilog.String("tablet", item.t.ID()), kdilog.Err(err))
		}

		c.mu.Lock()
		c.running--
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}
