package cell

import "bytes"

// Less reports a < b for use as the pivot function of an ordered container
// (e.g. btree.NewBTreeG). Three variants share the same row/family/qualifier
// prefix and differ only in which trailing field they compare.

// LessFunc matches the "less" signature expected by ordered containers.
type LessFunc func(a, b Cell) bool

// Primary orders by (row asc, family asc, qualifier asc, timestamp desc,
// type desc, writeSeq desc) — the full cell identity ordering.
func Primary(a, b Cell) bool {
	if c := compareRFQ(a, b); c != 0 {
		return c < 0
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	if a.Type != b.Type {
		return a.Type > b.Type
	}
	return a.WriteSeq > b.WriteSeq
}

// IgnoreTimestamp drops the timestamp field from the comparison: two cells
// that differ only in timestamp compare via type/writeSeq instead.
func IgnoreTimestamp(a, b Cell) bool {
	if c := compareRFQ(a, b); c != 0 {
		return c < 0
	}
	if a.Type != b.Type {
		return a.Type > b.Type
	}
	return a.WriteSeq > b.WriteSeq
}

// IgnoreType drops the type field from the comparison.
func IgnoreType(a, b Cell) bool {
	if c := compareRFQ(a, b); c != 0 {
		return c < 0
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.WriteSeq > b.WriteSeq
}

// Equal reports whether a and b are identical under the given ordering less
// (neither a < b nor b < a) — the identity test OrderedCellSet uses for its
// "set, not map" no-overwrite semantics.
func Equal(less LessFunc, a, b Cell) bool {
	return !less(a, b) && !less(b, a)
}

func compareRFQ(a, b Cell) int {
	if c := bytes.Compare(a.Row, b.Row); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Family, b.Family); c != 0 {
		return c
	}
	return bytes.Compare(a.Qualifier, b.Qualifier)
}
