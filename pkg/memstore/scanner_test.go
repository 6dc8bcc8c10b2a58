package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cometkv/pkg/arena"
	"cometkv/pkg/cell"
	"cometkv/pkg/config"
)

func TestScannerMergesLiveAndSnapshotInOrder(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")
	m.Snapshot()
	put(m, 2, "row2", "b")
	put(m, 3, "row3", "c")

	scanner := m.GetScanners()[0]
	defer scanner.Close()

	var rows []string
	for {
		c, ok := scanner.Next()
		if !ok {
			break
		}
		rows = append(rows, string(c.Row))
	}
	assert.Equal(t, []string{"row1", "row2", "row3"}, rows)
}

func TestScannerHidesWritesPastReadPoint(t *testing.T) {
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
	assert.False(t, ok, "seq 2 is past the scanner's read point and must stay invisible")
}

func TestScannerPeekDoesNotConsume(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")

	scanner := m.GetScanners()[0]
	defer scanner.Close()

	first, ok := scanner.Peek()
	require.True(t, ok)
	second, ok := scanner.Peek()
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestScannerSeekRepositions(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")
	put(m, 2, "row2", "b")
	put(m, 3, "row3", "c")

	scanner := m.GetScanners()[0]
	defer scanner.Close()

	ok := scanner.Seek(cell.CreateFirstOnRow([]byte("row2"), nil, nil))
	require.True(t, ok)
	c, ok := scanner.Next()
	require.True(t, ok)
	assert.Equal(t, "row2", string(c.Row))
}

func TestScannerReseekFallsBackToSeekPastLinearBudget(t *testing.T) {
	m := newTestStore(t)
	for i := 0; i < 10; i++ {
		put(m, uint64(i+1), string(rune('a'+i)), "v")
	}

	scanner := m.GetScanners()[0]
	scanner.linearLimit = 2 // force the fallback after a couple of steps
	defer scanner.Close()

	ok := scanner.Reseek(cell.CreateFirstOnRow([]byte{'h'}, nil, nil))
	require.True(t, ok)
	c, ok := scanner.Peek()
	require.True(t, ok)
	assert.Equal(t, "h", string(c.Row))
}

func TestScannerClosePinsAndUnpinsArena(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")

	scanner := m.GetScanners()[0]
	scanner.Close()
	scanner.Close() // second call must be a no-op, not a double-unpin panic
}

func TestPassesDeleteColumnCheckFastPath(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")

	scanner := m.GetScanners()[0]
	defer scanner.Close()
	assert.True(t, scanner.PassesDeleteColumnCheck(), "no deletes recorded anywhere: the fast path always passes")

	m.Delete(cell.New([]byte("row1"), []byte("cf"), []byte("q"), nil, 100, cell.Delete), 2)
	scanner2 := m.GetScanners()[0]
	defer scanner2.Close()
	assert.False(t, scanner2.PassesDeleteColumnCheck())
}

func TestSequenceIdAlwaysOutranksStorefiles(t *testing.T) {
	m := newTestStore(t)
	put(m, 1, "row1", "a")

	scanner := m.GetScanners()[0]
	defer scanner.Close()
	assert.Equal(t, uint64(cell.MaxWriteSeq), scanner.SequenceId(), "a MemStoreScanner must always win a key-tie against on-disk files")
}
