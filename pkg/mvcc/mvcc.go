// Package mvcc is the process-wide write-sequence service the memstore
// consumes but never owns: it assigns the write sequence ("LSN") stamped on
// every cell, and exposes the read point below which a scanner's writes are
// all known complete. Modeled as an explicit collaborator passed into
// MemStore.New rather than ambient global state, per the spec's "global
// state" design note, so tests can substitute a deterministic clock.
package mvcc

import (
	"container/heap"
	"sync"
)

// Controller assigns write sequences to writers and tracks which of them
// have completed, so ReadPoint never races ahead of an in-flight write.
type Controller struct {
	mu        sync.Mutex
	nextSeq   uint64
	readPoint uint64
	pending   pendingHeap
	completed map[uint64]struct{}
}

// New returns a Controller with its read point and sequence counter at zero.
func New() *Controller {
	return &Controller{completed: make(map[uint64]struct{})}
}

// AssignWriteSeq reserves the next write sequence for a writer about to
// insert a cell. The writer must call CompleteWrite once the cell is
// durably in the live set, or ReadPoint stalls behind it forever.
func (c *Controller) AssignWriteSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeq++
	seq := c.nextSeq
	heap.Push(&c.pending, seq)
	return seq
}

// CompleteWrite marks seq as visible. The read point advances past every
// contiguous run of completed sequences starting at the lowest pending one —
// a single slow writer holds the read point back, but any writers that
// finish out of order behind it are not individually delayed.
func (c *Controller) CompleteWrite(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed[seq] = struct{}{}
	for len(c.pending) > 0 {
		lowest := c.pending[0]
		if _, done := c.completed[lowest]; !done {
			break
		}
		heap.Pop(&c.pending)
		delete(c.completed, lowest)
		c.readPoint = lowest
	}
}

// ReadPoint returns the largest write sequence a reader starting now is
// guaranteed to see completed. A Cell with WriteSeq > ReadPoint() is
// invisible to that reader.
func (c *Controller) ReadPoint() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readPoint
}

type pendingHeap []uint64

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
