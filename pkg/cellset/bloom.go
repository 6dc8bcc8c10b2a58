package cellset

import (
	"hash/fnv"
	"sync"

	"github.com/willf/bitset"
)

// rowPrefixBloom is the per-generation row-prefix Bloom filter: every Add
// folds in the first prefixLen bytes of a cell's row, and MayContain reports
// whether a row prefix was possibly ever inserted. Rebuilt fresh on every
// MemStore rotation, matching the original's per-kvset bloom construction.
//
// Bit storage is a willf/bitset.BitSet (grounded in the sibling Mongongo
// teacher-pack repo's per-column-family dirty bitset) rather than the
// teacher's own []bool slice, since BitSet's word-packed representation is
// the idiomatic choice once a hash-count > 1 filter is wired to something
// other than a toy.
type rowPrefixBloom struct {
	mu        sync.RWMutex
	bits      *bitset.BitSet
	size      uint
	hashCount int
	prefixLen int
}

const (
	bloomBitsPerEntry   = 10 // ~1% false positive rate at k=7
	bloomExpectedInserts = 4096
)

func newRowPrefixBloom(prefixLen int) *rowPrefixBloom {
	size := uint(bloomExpectedInserts * bloomBitsPerEntry)
	return &rowPrefixBloom{
		bits:      bitset.New(size),
		size:      size,
		hashCount: 7,
		prefixLen: prefixLen,
	}
}

func (b *rowPrefixBloom) prefix(row []byte) []byte {
	if b.prefixLen < 0 || b.prefixLen >= len(row) {
		return row
	}
	return row[:b.prefixLen]
}

func (b *rowPrefixBloom) Add(row []byte) {
	key := b.prefix(row)
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.hashCount; i++ {
		b.bits.Set(b.index(key, i))
	}
}

func (b *rowPrefixBloom) MayContain(row []byte) bool {
	key := b.prefix(row)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := 0; i < b.hashCount; i++ {
		if !b.bits.Test(b.index(key, i)) {
			return false
		}
	}
	return true
}

func (b *rowPrefixBloom) index(key []byte, salt int) uint {
	h := fnv.New64a()
	h.Write(key)
	h.Write([]byte{byte(salt)})
	return uint(h.Sum64() % uint64(b.size))
}
