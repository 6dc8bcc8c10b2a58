package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimaryOrdersByRowThenTimestampDesc(t *testing.T) {
	a := New([]byte("row1"), []byte("cf"), []byte("q"), nil, 200, Put)
	b := New([]byte("row1"), []byte("cf"), []byte("q"), nil, 100, Put)
	c := New([]byte("row2"), []byte("cf"), []byte("q"), nil, 100, Put)

	assert.True(t, Primary(a, b), "newer timestamp on the same RFQ sorts first")
	assert.False(t, Primary(b, a))
	assert.True(t, Primary(a, c), "row1 sorts before row2")
}

func TestPrimaryBreaksTimestampTiesByTypeThenWriteSeq(t *testing.T) {
	del := New([]byte("row"), []byte("cf"), []byte("q"), nil, 100, Delete)
	put := New([]byte("row"), []byte("cf"), []byte("q"), nil, 100, Put)
	assert.True(t, Primary(del, put), "Delete (type 8) sorts before Put (type 4) at equal timestamp")

	older := New([]byte("row"), []byte("cf"), []byte("q"), nil, 100, Put)
	older.WriteSeq = 1
	newer := New([]byte("row"), []byte("cf"), []byte("q"), nil, 100, Put)
	newer.WriteSeq = 2
	assert.True(t, Primary(newer, older), "higher write sequence sorts first among otherwise-equal cells")
}

func TestIgnoreTimestampAndType(t *testing.T) {
	a := New([]byte("row"), []byte("cf"), []byte("q"), nil, 200, Put)
	b := New([]byte("row"), []byte("cf"), []byte("q"), nil, 100, Delete)
	assert.False(t, IgnoreTimestamp(a, b))
	assert.True(t, IgnoreTimestamp(b, a), "timestamps ignored: Delete (type 8) sorts before Put (type 4)")
	assert.True(t, IgnoreType(a, b), "types ignored: the newer timestamp sorts first")
}

func TestEqual(t *testing.T) {
	a := New([]byte("row"), []byte("cf"), []byte("q"), nil, 100, Put)
	b := New([]byte("row"), []byte("cf"), []byte("q"), nil, 100, Put)
	assert.True(t, Equal(Primary, a, b))

	c := New([]byte("row"), []byte("cf"), []byte("q"), nil, 101, Put)
	assert.False(t, Equal(Primary, a, c))
}
