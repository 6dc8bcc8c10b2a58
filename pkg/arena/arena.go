// Package arena implements the memstore's slab byte allocator (the "LAB" —
// local allocation buffer). Cells copied into an Arena get their own
// contiguous, arena-owned backing bytes instead of many small heap
// allocations, which is what keeps a long-lived memstore from fragmenting
// the Go heap under a stream of small, short-to-medium-lived cells.
//
// The bump-pointer-over-fixed-chunk shape and the NewArena(size)/Allocation
// naming are grounded in the arena-backed skiplist the teacher repo wires up
// in its mor_arenaskl variant (github.com/dborchard/cometkv/pkg/memtable/mor_arenaskl),
// generalized here to the refcounted, poolable arena the spec calls for.
package arena

import (
	"sync"
	"sync/atomic"
)

// Allocation is what Allocate hands back on success: a single slice of the
// chunk, already cut to exactly the requested length, in place of a separate
// (buffer, offset, len) triple.
type Allocation struct {
	Buffer []byte
}

type chunk struct {
	buf []byte
	pos atomic.Uint32
}

// Arena owns a chain of fixed-size chunks and bump-allocates within the
// current one, swapping in a new chunk (from the pool, or freshly made) on
// overflow.
type Arena struct {
	chunkSize uint32
	pool      *Pool
	current   atomic.Pointer[chunk]
	pins      atomic.Int64
	closed    atomic.Bool

	mu   sync.Mutex
	all  [][]byte // every chunk ever handed out by this arena, for release on Close
}

// New returns an Arena that allocates chunkSize-byte chunks, recycling them
// through pool when provided (pool may be nil to allocate directly).
func New(chunkSize uint32, pool *Pool) *Arena {
	return &Arena{chunkSize: chunkSize, pool: pool}
}

// Allocate copies nothing itself; it reserves n contiguous bytes in the
// current chunk and returns them for the caller to fill. It returns ok=false
// without error when n exceeds the chunk size — the caller keeps its
// original, arena-unmanaged bytes in that case, per the spec's "never
// throws" oversize contract.
func (a *Arena) Allocate(n int) (Allocation, bool) {
	if n <= 0 || uint32(n) > a.chunkSize {
		return Allocation{}, false
	}
	if a.closed.Load() {
		panic("arena: allocate after close")
	}
	need := uint32(n)
	for {
		c := a.current.Load()
		if c == nil {
			c = a.newChunk()
			if !a.current.CompareAndSwap(nil, c) {
				c = a.current.Load()
			}
		}
		end := c.pos.Add(need)
		if end <= uint32(len(c.buf)) {
			return Allocation{Buffer: c.buf[end-need : end]}, true
		}
		// This chunk is full (or this allocation tipped it over); swap in a
		// fresh one and retry. Concurrent overflowing allocators may race
		// here — only one CAS wins, the rest retry against the winner.
		next := a.newChunk()
		a.current.CompareAndSwap(c, next)
	}
}

func (a *Arena) newChunk() *chunk {
	var buf []byte
	if a.pool != nil {
		buf = a.pool.Checkout(a.chunkSize)
	} else {
		buf = make([]byte, a.chunkSize)
	}
	a.mu.Lock()
	a.all = append(a.all, buf)
	a.mu.Unlock()
	return &chunk{buf: buf}
}

// PinScanner registers a scanner's reference to this arena, deferring
// reclamation until UnpinScanner brings the count back to zero.
func (a *Arena) PinScanner() { a.pins.Add(1) }

// UnpinScanner releases a scanner's reference. If the arena has already
// been closed and this was the last pin, its chunks return to the pool.
func (a *Arena) UnpinScanner() {
	if a.pins.Add(-1) == 0 && a.closed.Load() {
		a.release()
	}
}

// Close retires the arena: no further Allocate calls are permitted. Chunks
// are returned to the pool immediately if no scanner currently pins the
// arena, or deferred to the pinning scanner's final UnpinScanner otherwise.
// Close is the MemStore's to call, under its write lock for the decision but
// the actual pool interaction happens outside that lock — see memstore.ClearSnapshot.
func (a *Arena) Close() {
	if !a.closed.CompareAndSwap(false, true) {
		return
	}
	if a.pins.Load() == 0 {
		a.release()
	}
}

func (a *Arena) release() {
	a.current.Store(nil)
	if a.pool == nil {
		return
	}
	a.mu.Lock()
	chunks := a.all
	a.all = nil
	a.mu.Unlock()
	for _, buf := range chunks {
		a.pool.Checkin(buf)
	}
}
