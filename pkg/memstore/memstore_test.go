package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cometkv/pkg/arena"
	"cometkv/pkg/cell"
	"cometkv/pkg/config"
)

func newTestStore(t *testing.T) *MemStore {
	t.Helper()
	return New(Options{
		Config: config.MemStoreConfig{UseArena: true, ArenaChunkBytes: 4096, ArenaPoolMaxChunks: 8, ReseekLinearLimit: 4},
		Family: config.FamilyDescriptor{RowPrefixBloomLength: -1},
		Pool:   arena.NewPool(8),
	})
}

func put(m *MemStore, seq uint64, row, value string) int64 {
	c := cell.New([]byte(row), []byte("cf"), []byte("q"), []byte(value), int64(seq), cell.Put)
	return m.Add(c, seq)
}

func TestAddGrowsHeapSize(t *testing.T) {
	m := newTestStore(t)
	base := m.HeapSize()
	delta := put(m, 1, "row1", "v1")
	assert.True(t, delta > 0)
	assert.Equal(t, base+delta, m.HeapSize())
}

func TestAddDuplicateKeyIsNoOp(t *testing.T) {
	m := newTestStore(t)
	c := cell.New([]byte("row1"), []byte("cf"), []byte("q"), []byte("v1"), 100, cell.Put)
	first := m.Add(c, 1)
	second := m.Add(c, 1)
	assert.True(t, first > 0)
	assert.Equal(t, int64(0), second)
}

func TestSmallestWriteSeqTracksLiveMinimum(t *testing.T) {
	m := newTestStore(t)
	assert.Equal(t, uint64(cell.MaxWriteSeq), m.GetSmallestWriteSeq())
	put(m, 5, "row1", "v")
	put(m, 2, "row2", "v")
	put(m, 9, "row3", "v")
	assert.Equal(t, uint64(2), m.GetSmallestWriteSeq())
}

func TestUpdateColumnValueRemovesOlderPutSameColumn(t *testing.T) {
	m := newTestStore(t)
	old := cell.New([]byte("row1"), []byte("cf"), []byte("counter"), []byte{0, 0, 0, 1}, 100, cell.Put)
	m.Add(old, 1)

	m.UpdateColumnValue([]byte("row1"), []byte("cf"), []byte("counter"), []byte{0, 0, 0, 2}, 200, 0)

	scanner := m.GetScanners()[0]
	defer scanner.Close()
	c, ok := scanner.Next()
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 2}, c.Value)
	_, ok = scanner.Next()
	assert.False(t, ok, "the older Put for the same column must have been removed")
}

func TestUpdateColumnValueLeavesOtherQualifiersAlone(t *testing.T) {
	m := newTestStore(t)
	m.Add(cell.New([]byte("row1"), []byte("cf"), []byte("a"), []byte("a-val"), 100, cell.Put), 1)
	m.Add(cell.New([]byte("row1"), []byte("cf"), []byte("b"), []byte("b-val"), 100, cell.Put), 2)

	m.UpdateColumnValue([]byte("row1"), []byte("cf"), []byte("a"), []byte("a-new"), 200, 0)

	scanner := m.GetScanners()[0]
	defer scanner.Close()
	var values []string
	for {
		c, ok := scanner.Next()
		if !ok {
			break
		}
		values = append(values, string(c.Value))
	}
	assert.ElementsMatch(t, []string{"a-new", "b-val"}, values, "qualifier b is untouched; qualifier a's stale Put was replaced in place")
}

func TestGetNextRowAcrossLiveAndSnapshot(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "v")
	m.Snapshot()
	put(m, 2, "row2", "v")

	next, ok := m.GetNextRow(nil)
	require.True(t, ok)
	assert.Equal(t, "row1", string(next.Row))

	c := next
	next, ok = m.GetNextRow(&c)
	require.True(t, ok)
	assert.Equal(t, "row2", string(next.Row))

	next, ok = m.GetNextRow(&next)
	assert.False(t, ok)
}

func TestSnapshotAndClearSnapshotRotation(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "v")

	assert.True(t, m.GetSnapshot().IsEmpty())
	m.Snapshot()
	assert.False(t, m.GetSnapshot().IsEmpty())
	assert.Equal(t, int64(0), m.KeySize(), "live side resets to empty after rotation")

	snap := m.GetSnapshot()
	require.NoError(t, m.ClearSnapshot(snap))
	assert.True(t, m.GetSnapshot().IsEmpty())
}

func TestClearSnapshotRejectsStaleReference(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "v")
	m.Snapshot()
	stale := m.GetSnapshot()

	require.NoError(t, m.ClearSnapshot(stale))
	assert.Error(t, m.ClearSnapshot(stale), "clearing an already-cleared snapshot reference must fail")
}

func TestDoubleSnapshotIsANoOp(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "v1")
	m.Snapshot()
	firstSnapshot := m.GetSnapshot()

	put(m, 2, "row2", "v2")
	m.Snapshot() // must do nothing: a snapshot is already pending

	assert.Same(t, firstSnapshot, m.GetSnapshot())
	assert.Equal(t, 1, m.GetSnapshot().Len())
}

func TestShouldSeekRespectsTimeRangeAndExpiry(t *testing.T) {
	m := newTestStore(t)
	c := cell.New([]byte("row1"), []byte("cf"), []byte("q"), []byte("v"), 1000, cell.Put)
	m.Add(c, 1)

	assert.True(t, m.ShouldSeek(500, 1500, 0))
	assert.False(t, m.ShouldSeek(2000, 3000, 0), "query window does not intersect the tracked timestamps")
	assert.False(t, m.ShouldSeek(500, 1500, 2000), "every cell has expired past oldestUnexpiredTs")
}

func TestGetRowKeyAtOrBeforeExactRow(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")
	put(m, 2, "row3", "c")
	put(m, 3, "row5", "e")

	got, ok := m.GetRowKeyAtOrBefore([]byte("row3"), 0)
	require.True(t, ok)
	assert.Equal(t, "row3", string(got.Row))
}

func TestGetRowKeyAtOrBeforeFallsBackToPreviousRow(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")
	put(m, 2, "row3", "c")

	got, ok := m.GetRowKeyAtOrBefore([]byte("row4"), 0)
	require.True(t, ok)
	assert.Equal(t, "row3", string(got.Row))
}

func TestGetRowKeyAtOrBeforeNoCandidate(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row5", "a")

	_, ok := m.GetRowKeyAtOrBefore([]byte("row1"), 0)
	assert.False(t, ok, "nothing in the store sorts at or before row1")
}

func TestGetRowKeyAtOrBeforeSearchesSnapshotToo(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")
	m.Snapshot()
	put(m, 2, "row9", "z")

	got, ok := m.GetRowKeyAtOrBefore([]byte("row5"), 0)
	require.True(t, ok)
	assert.Equal(t, "row1", string(got.Row))
}

func TestGetRowKeyAtOrBeforePruneKeepsLiveAccountingConsistent(t *testing.T) {
	m := newTestStore(t)

	stale := cell.New([]byte("row1"), []byte("cf"), []byte("q"), nil, 1, cell.DeleteColumn)
	m.Add(stale, 1)
	fresh := cell.New([]byte("row3"), []byte("cf"), []byte("q"), []byte("c"), 1000, cell.Put)
	m.Add(fresh, 2)

	require.Equal(t, uint64(1), m.deletesInLive.Load())
	heapBeforePrune := m.HeapSize()

	// row1's tombstone (ts=1) is older than oldestUnexpiredTs=100, so the
	// forward walk prunes it on the way past; row3 is too far from row1 to
	// satisfy the lookup, so this legitimately finds nothing.
	_, ok := m.GetRowKeyAtOrBefore([]byte("row1"), 100)
	assert.False(t, ok)

	assert.Equal(t, uint64(0), m.deletesInLive.Load(), "pruning the only tombstone must clear deletesInLive")
	assert.True(t, m.HeapSize() < heapBeforePrune, "pruning a cell must shrink heapSize to match the set's contents")
}

type fakeReadPointer struct{ rp uint64 }

func (f fakeReadPointer) ReadPoint() uint64 { return f.rp }

func TestGetScannersConsultsWiredMVCCReadPoint(t *testing.T) {
	m := New(Options{
		Config: config.MemStoreConfig{UseArena: true, ArenaChunkBytes: 4096, ArenaPoolMaxChunks: 8},
		Family: config.FamilyDescriptor{RowPrefixBloomLength: -1},
		Pool:   arena.NewPool(8),
		MVCC:   fakeReadPointer{rp: 1},
	})
	put(m, 1, "row1", "a")
	put(m, 2, "row2", "b")

	scanner := m.GetScanners()[0]
	defer scanner.Close()

	c, ok := scanner.Next()
	require.True(t, ok)
	assert.Equal(t, "row1", string(c.Row))

	_, ok = scanner.Next()
	assert.False(t, ok, "seq 2 is past the wired MVCC read point and must stay invisible")
}

func TestGetScannersDefaultsToFullVisibilityWithoutMVCC(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")

	scanner := m.GetScanners()[0]
	defer scanner.Close()

	_, ok := scanner.Next()
	assert.True(t, ok, "no MVCC wired: every write is immediately visible")
}
