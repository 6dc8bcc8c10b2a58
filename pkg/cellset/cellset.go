// Package cellset implements OrderedCellSet: a concurrent ordered set of
// cells keyed by full cell identity, with "set, not map" semantics (a
// duplicate insert is a no-op — the first insertion wins) and an optional
// row-prefix Bloom filter.
//
// The backing structure is a copy-on-write github.com/tidwall/btree.BTreeG
// behind an atomic.Pointer, grounded directly on the teacher's own
// BTreeGCoW wrapper (pkg/memtable/mor_cow/cow.go and the serialized variant
// in pkg/c_memtable/vacuum_cow/cow.go): mutations take a package-private
// mutex, Copy the current tree, mutate the copy, then publish it — so
// readers that already loaded the old pointer keep iterating a stable,
// never-mutated snapshot. That is exactly the "weakly consistent iterator,
// no ConcurrentModification" contract the spec asks for, for free.
package cellset

import (
	"sync"
	"sync/atomic"

	"cometkv/pkg/cell"

	"github.com/tidwall/btree"
)

// Set is a concurrent ordered set of cells under one comparator.
type Set struct {
	less cell.LessFunc

	mu    sync.Mutex // serializes Add/Remove; reads never take it
	state atomic.Pointer[btree.BTreeG[cell.Cell]]

	bloom *rowPrefixBloom // nil when the row-prefix bloom is disabled
}

// New returns an empty Set ordered by less. rowPrefixBloomLen is the number
// of leading row bytes indexed by the Bloom filter; -1 disables it.
func New(less cell.LessFunc, rowPrefixBloomLen int) *Set {
	s := &Set{less: less}
	// The tree's own RWMutex is disabled: published trees are never mutated
	// (s.mu serializes Copy-then-mutate), and an iterator holding that lock
	// would block the Copy in every later Add/Remove.
	s.state.Store(btree.NewBTreeGOptions(less, btree.Options{NoLocks: true}))
	if rowPrefixBloomLen >= 0 {
		s.bloom = newRowPrefixBloom(rowPrefixBloomLen)
	}
	return s
}

func (s *Set) tree() *btree.BTreeG[cell.Cell] { return s.state.Load() }

// Add inserts c if no equal cell (under the set's comparator) is already
// present. It returns false, a no-op, when the key already exists — the
// set never overwrites, so the first insertion always wins.
func (s *Set) Add(c cell.Cell) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.tree()
	if _, found := cur.Get(c); found {
		return false
	}
	next := cur.Copy()
	next.Set(c)
	s.state.Store(next)
	if s.bloom != nil {
		s.bloom.Add(c.Row)
	}
	return true
}

// Remove deletes c if present, reporting whether it was found.
func (s *Set) Remove(c cell.Cell) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.tree()
	if _, found := cur.Get(c); !found {
		return false
	}
	next := cur.Copy()
	next.Delete(c)
	s.state.Store(next)
	return true
}

// RemoveVia removes the cell an iterator currently points to — a direct
// translation of the spec's removeVia(iterator) operation onto a
// copy-on-write set, where "remove while iterating" means "mutate the live
// set while the iterator keeps walking its own already-captured snapshot".
func (s *Set) RemoveVia(it *Iterator) bool {
	if !it.Valid() {
		return false
	}
	return s.Remove(it.Cell())
}

// Contains reports whether c (by full identity) is present.
func (s *Set) Contains(c cell.Cell) bool {
	_, found := s.tree().Get(c)
	return found
}

// IsEmpty reports whether the set currently holds no cells.
func (s *Set) IsEmpty() bool {
	return s.tree().Len() == 0
}

// Len returns the number of cells currently in the set.
func (s *Set) Len() int {
	return s.tree().Len()
}

// MayContainRowPrefix reports whether the set's Bloom filter admits the
// cell's row prefix. Always true when the Bloom filter is disabled.
func (s *Set) MayContainRowPrefix(c cell.Cell) bool {
	if s.bloom == nil {
		return true
	}
	return s.bloom.MayContain(c.Row)
}

// TailRange returns a view of every cell >= from.
func (s *Set) TailRange(from cell.Cell) *View {
	return &View{tree: s.tree(), less: s.less, lower: &from}
}

// HeadRange returns a view of every cell < upto (exclusive=true) or <= upto
// (exclusive=false).
func (s *Set) HeadRange(upto cell.Cell, exclusive bool) *View {
	return &View{tree: s.tree(), less: s.less, upper: &upto, upperExclusive: exclusive}
}

// Iterator returns a forward iterator over the whole set.
func (s *Set) Iterator() *Iterator {
	return (&View{tree: s.tree(), less: s.less}).Iterator()
}

// DescendingIterator returns a reverse iterator over the whole set.
func (s *Set) DescendingIterator() *Iterator {
	return (&View{tree: s.tree(), less: s.less}).DescendingIterator()
}

// View is a head/tail range over a captured tree snapshot. Views are cheap
// (no copying — Copy() on the tidwall btree shares unmodified nodes) and may
// be iterated forward or backward any number of times.
type View struct {
	tree *btree.BTreeG[cell.Cell]
	less cell.LessFunc

	lower *cell.Cell
	upper *cell.Cell

	upperExclusive bool
}

// Iterator returns a forward iterator over the view.
func (v *View) Iterator() *Iterator {
	it := v.tree.Iter()
	var ok bool
	if v.lower != nil {
		ok = it.Seek(*v.lower)
	} else {
		ok = it.First()
	}
	iter := &Iterator{it: it, ok: ok, dir: forward, less: v.less, upper: v.upper, upperExclusive: v.upperExclusive}
	if iter.ok {
		iter.checkBounds()
	}
	return iter
}

// DescendingIterator returns a reverse iterator over the view.
func (v *View) DescendingIterator() *Iterator {
	it := v.tree.Iter()
	var ok bool
	switch {
	case v.upper != nil:
		ok = it.Seek(*v.upper)
		if ok {
			cur := it.Item()
			if cell.Equal(v.less, cur, *v.upper) {
				if v.upperExclusive {
					ok = it.Prev()
				}
			} else {
				// Seek landed strictly past upper (no exact match); step back.
				ok = it.Prev()
			}
		} else {
			ok = it.Last()
		}
	default:
		ok = it.Last()
	}
	iter := &Iterator{it: it, ok: ok, dir: backward, less: v.less, lower: v.lower}
	if iter.ok {
		iter.checkBounds()
	}
	return iter
}
