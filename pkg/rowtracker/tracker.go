// Package rowtracker implements the accumulator the original MemStore calls
// GetClosestRowBeforeTracker: state carried across both the live and
// snapshot generations while hunting for the row at or immediately before a
// target row, tracking expired cells to prune and the best non-delete
// candidate found so far per (row, qualifier).
//
// Grounded on original_source's MemStore.walkForwardInSingleRow /
// getRowKeyBefore / memberOfPreviousRow trio (see pkg/memstore's
// GetRowKeyAtOrBefore, which drives a Tracker the same way those three
// methods drive a GetClosestRowBeforeTracker).
package rowtracker

import (
	"bytes"

	"cometkv/pkg/cell"
)

// Tracker accumulates candidates while walking one or more OrderedCellSets
// in search of the row at or before a target row. It is not safe for
// concurrent use; callers create one per GetRowKeyAtOrBefore call and feed
// it each generation in turn.
type Tracker struct {
	targetRow         []byte
	oldestUnexpiredTs int64

	bestRow        []byte
	seenQualifiers map[string]struct{}
	candidate      *cell.Cell
}

// New creates a Tracker hunting for targetRow. oldestUnexpiredTs is the
// timestamp floor below which a cell is treated as expired and skipped (and
// reported for removal via IsExpired); pass 0 to disable expiry pruning.
func New(targetRow []byte, oldestUnexpiredTs int64) *Tracker {
	return &Tracker{targetRow: targetRow, oldestUnexpiredTs: oldestUnexpiredTs}
}

// TargetKey returns the synthetic "first possible cell" for the current
// target row — the seek key walkForwardInSingleRow and memberOfPreviousRow
// both pivot on.
func (t *Tracker) TargetKey() cell.Cell {
	return cell.CreateFirstOnRow(t.targetRow, nil, nil)
}

// IsExpired reports whether c's timestamp falls below the configured
// oldest-unexpired floor.
func (t *Tracker) IsExpired(c cell.Cell) bool {
	return t.oldestUnexpiredTs > 0 && c.Timestamp < t.oldestUnexpiredTs
}

// IsTooFar reports whether c has walked past the row firstOnRow pivots on —
// the signal to stop a forward walk and fall back to walking backward.
func (t *Tracker) IsTooFar(c cell.Cell, firstOnRow cell.Cell) bool {
	return !cell.SameRow(c, firstOnRow)
}

// Handle folds c into the accumulator. The first time a row is seen it
// resets the per-row qualifier set; a qualifier already seen on the current
// row is ignored (a later, lower-priority version of a column already
// resolved). It returns true once c establishes a usable non-delete
// candidate, the same "stop walking, we have a contender" signal
// walkForwardInSingleRow's state.handle(kv) gives the original.
func (t *Tracker) Handle(c cell.Cell) bool {
	if t.bestRow == nil || !bytes.Equal(t.bestRow, c.Row) {
		t.bestRow = append([]byte(nil), c.Row...)
		t.seenQualifiers = make(map[string]struct{})
	}
	key := string(c.Qualifier)
	if _, seen := t.seenQualifiers[key]; seen {
		return false
	}
	t.seenQualifiers[key] = struct{}{}
	if c.Type.IsDelete() {
		return false
	}
	cc := c
	t.candidate = &cc
	return true
}

// IsBetterCandidate reports whether c's row is strictly closer to the
// target than the best candidate found so far (or whether there is no
// candidate yet at all) — getRowKeyBefore's loop-continuation check.
func (t *Tracker) IsBetterCandidate(c cell.Cell) bool {
	if t.candidate == nil {
		return true
	}
	return bytes.Compare(c.Row, t.candidate.Row) > 0
}

// Result returns the best candidate accumulated so far, if any.
func (t *Tracker) Result() (cell.Cell, bool) {
	if t.candidate == nil {
		return cell.Cell{}, false
	}
	return *t.candidate, true
}
