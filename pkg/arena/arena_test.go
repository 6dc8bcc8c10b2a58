package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateWithinChunk(t *testing.T) {
	a := New(1024, nil)
	alloc, ok := a.Allocate(100)
	assert.True(t, ok)
	assert.Len(t, alloc.Buffer, 100)
}

func TestAllocateRejectsOversizeRequest(t *testing.T) {
	a := New(64, nil)
	_, ok := a.Allocate(128)
	assert.False(t, ok)
}

func TestAllocateRejectsNonPositiveRequest(t *testing.T) {
	a := New(64, nil)
	_, ok := a.Allocate(0)
	assert.False(t, ok)
}

func TestAllocateSpillsIntoNewChunkOnOverflow(t *testing.T) {
	a := New(16, nil)
	first, ok := a.Allocate(10)
	assert.True(t, ok)
	second, ok := a.Allocate(10) // does not fit in the remaining 6 bytes
	assert.True(t, ok)

	assert.NotSame(t, &first.Buffer[0], &second.Buffer[0])
	assert.Len(t, a.all, 2)
}

func TestCloseReturnsEveryChunkToThePool(t *testing.T) {
	pool := NewPool(8)
	a := New(16, pool)

	for i := 0; i < 5; i++ {
		_, ok := a.Allocate(16)
		assert.True(t, ok)
	}
	assert.Equal(t, 5, len(a.all))

	a.Close()
	assert.Equal(t, 5, pool.Len(), "every chunk this arena ever allocated, not just the last one, must return")
}

func TestPinDefersReleaseUntilLastUnpin(t *testing.T) {
	pool := NewPool(8)
	a := New(16, pool)
	_, _ = a.Allocate(16)

	a.PinScanner()
	a.Close()
	assert.Equal(t, 0, pool.Len(), "close must not release chunks while a scanner still pins the arena")

	a.UnpinScanner()
	assert.Equal(t, 1, pool.Len())
}

func TestAllocateAfterClosePanics(t *testing.T) {
	a := New(16, nil)
	a.Close()
	assert.Panics(t, func() { a.Allocate(8) })
}
