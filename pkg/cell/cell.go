// Package cell defines the immutable record type the memstore, the arena
// and the on-disk writers all exchange: a single versioned row/family/
// qualifier/timestamp write, plus the monotonic write sequence MVCC needs
// to decide visibility.
package cell

import "math"

// Type is the kind of mutation a Cell represents.
type Type uint8

const (
	// Minimum is below every real type, so under the type-descending order it
	// sorts after every real type; only used as a probe bound.
	Minimum Type = 0
	Put     Type = 4
	Delete  Type = 8
	// DeleteColumn removes all versions of one qualifier at or before its timestamp.
	DeleteColumn Type = 12
	// DeleteFamily removes every qualifier in the family at or before its timestamp.
	DeleteFamily Type = 14
	// Maximum sorts before every real type under the type-descending order;
	// used by CreateFirstOnRow so a
	// tailRange seeded with it walks every version of a row/family/qualifier.
	Maximum Type = 255
)

// IsDelete reports whether the type marks a tombstone of any kind.
func (t Type) IsDelete() bool {
	return t == Delete || t == DeleteColumn || t == DeleteFamily
}

// MaxTimestamp sorts before every real timestamp under the timestamp-desc
// ordering, mirroring HBase's HConstants.LATEST_TIMESTAMP.
const MaxTimestamp = math.MaxInt64

// MaxWriteSeq sorts before every real write sequence under writeSeq-desc.
const MaxWriteSeq = math.MaxUint64

// entryOverhead approximates the per-entry bookkeeping a set node costs on
// top of the cell's own bytes (pointers, btree node slot, small struct
// padding). It is a constant model, not a measured one, matching the way
// the original accounting model documents itself as approximate.
const entryOverhead = 64

// Cell is immutable once constructed and inserted into an ordered set.
type Cell struct {
	Row       []byte
	Family    []byte
	Qualifier []byte
	Value     []byte
	Timestamp int64
	Type      Type
	WriteSeq  uint64
}

// New builds a Cell from its fields. WriteSeq is assigned separately by the
// caller (typically from an MVCC controller) before insertion.
func New(row, family, qualifier, value []byte, timestamp int64, typ Type) Cell {
	return Cell{
		Row:       row,
		Family:    family,
		Qualifier: qualifier,
		Value:     value,
		Timestamp: timestamp,
		Type:      typ,
	}
}

// CreateFirstOnRow builds a probe cell that sorts before every real cell of
// the given row/family/qualifier under the primary comparator: used to seed
// a tailRange walk that must see every version of that column.
func CreateFirstOnRow(row, family, qualifier []byte) Cell {
	return Cell{
		Row:       row,
		Family:    family,
		Qualifier: qualifier,
		Timestamp: MaxTimestamp,
		Type:      Maximum,
		WriteSeq:  MaxWriteSeq,
	}
}

// CreateFirstOnNextRow builds a probe cell that sorts before every cell of
// the row immediately following row — used to bound a forward row scan.
func CreateFirstOnNextRow(row []byte) Cell {
	next := make([]byte, len(row)+1)
	copy(next, row)
	return Cell{
		Row:       next,
		Timestamp: MaxTimestamp,
		Type:      Maximum,
		WriteSeq:  MaxWriteSeq,
	}
}

// HeapSize approximates the heap bytes this cell contributes once resident
// in an ordered set, including the fixed per-entry overhead the size
// accounting model attributes to every live insertion.
func (c Cell) HeapSize() int64 {
	return int64(entryOverhead + len(c.Row) + len(c.Family) + len(c.Qualifier) + len(c.Value) + 8 + 1 + 8)
}

// Length returns the serialized payload length, excluding accounting overhead.
func (c Cell) Length() int {
	return len(c.Row) + len(c.Family) + len(c.Qualifier) + len(c.Value)
}

// SameRow reports whether two cells share the same row bytes.
func SameRow(a, b Cell) bool {
	return bytesEqual(a.Row, b.Row)
}

// SameRowFamilyQualifier reports whether a and b address the same column.
func SameRowFamilyQualifier(a, b Cell) bool {
	return bytesEqual(a.Row, b.Row) && bytesEqual(a.Family, b.Family) && bytesEqual(a.Qualifier, b.Qualifier)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
