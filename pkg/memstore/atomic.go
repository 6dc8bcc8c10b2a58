package memstore

import "sync/atomic"

// atomicInt64 is a thin wrapper over atomic.Int64 kept for symmetry with
// atomicUint64 below, which needs a CAS loop atomic.Int64 has no
// counterpart for.
type atomicInt64 struct{ v atomic.Int64 }

func (a *atomicInt64) Load() int64       { return a.v.Load() }
func (a *atomicInt64) Store(n int64)     { a.v.Store(n) }
func (a *atomicInt64) Add(delta int64) int64 { return a.v.Add(delta) }

// atomicUint64 adds ShrinkTo (CAS-loop minimum) over atomic.Uint64.
type atomicUint64 struct{ v atomic.Uint64 }

func (a *atomicUint64) Load() uint64            { return a.v.Load() }
func (a *atomicUint64) Store(n uint64)          { a.v.Store(n) }
func (a *atomicUint64) Add(delta uint64) uint64 { return a.v.Add(delta) }

// ShrinkTo atomically sets the stored value to n if n is smaller than the
// current value, used to track the smallest live write sequence without a
// lock.
func (a *atomicUint64) ShrinkTo(n uint64) {
	for {
		cur := a.v.Load()
		if n >= cur {
			return
		}
		if a.v.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Dec decrements the stored counter by one, used when a delete marker is
// pruned out from under a live count.
func (a *atomicUint64) Dec() { a.v.Add(^uint64(0)) }
