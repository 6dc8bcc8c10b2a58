package cellset

import (
	"cometkv/pkg/cell"

	"github.com/tidwall/btree"
)

type direction int

const (
	forward direction = iota
	backward
)

// Iterator walks a captured, point-in-time tree snapshot (tidwall/btree's
// copy-on-write BTreeG) — concurrent inserts into the live Set create new
// snapshots elsewhere and never mutate the one this Iterator holds, which is
// what gives iteration its "weakly consistent, no ConcurrentModification"
// guarantee without any extra bookkeeping.
type Iterator struct {
	it   btree.IterG[cell.Cell]
	ok   bool
	dir  direction
	less cell.LessFunc

	lower          *cell.Cell
	lowerExclusive bool
	upper          *cell.Cell
	upperExclusive bool
}

// Valid reports whether the iterator currently points at an in-range cell.
func (it *Iterator) Valid() bool { return it.ok }

// Cell returns the cell at the current position. Only valid when Valid().
func (it *Iterator) Cell() cell.Cell { return it.it.Item() }

// Next advances the iterator one step in its direction (forward for an
// ascending iterator, backward for a descending one) and reports whether the
// new position is still in range.
func (it *Iterator) Next() bool {
	if !it.ok {
		return false
	}
	if it.dir == forward {
		it.ok = it.it.Next()
	} else {
		it.ok = it.it.Prev()
	}
	if it.ok {
		it.checkBounds()
	}
	return it.ok
}

func (it *Iterator) checkBounds() {
	cur := it.it.Item()
	if it.dir == forward && it.upper != nil && !it.withinUpper(cur) {
		it.ok = false
		return
	}
	if it.dir == backward && it.lower != nil && !it.withinLower(cur) {
		it.ok = false
	}
}

func (it *Iterator) withinUpper(cur cell.Cell) bool {
	if it.upperExclusive {
		return it.less(cur, *it.upper)
	}
	return !it.less(*it.upper, cur)
}

func (it *Iterator) withinLower(cur cell.Cell) bool {
	if it.lowerExclusive {
		return it.less(*it.lower, cur)
	}
	return !it.less(cur, *it.lower)
}
