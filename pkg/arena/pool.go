package arena

import "sync"

// Pool is a bounded, process-wide cache of free chunks shared by every
// MemStore's Arena in the process, so a chunk discarded by one column
// family's flush can be reused by another's next allocation instead of
// going back to the Go allocator.
type Pool struct {
	mu        sync.Mutex
	maxChunks int
	free      [][]byte
}

// NewPool returns a Pool that retains at most maxChunks free chunks; beyond
// that high-water mark, Checkin discards rather than retains.
func NewPool(maxChunks int) *Pool {
	return &Pool{maxChunks: maxChunks}
}

// Checkout returns a free chunk of exactly size bytes if one is cached,
// otherwise allocates a fresh one. Returned chunks are not zeroed on reuse —
// callers only ever read back the bytes they themselves wrote via Allocate.
func (p *Pool) Checkout(size uint32) []byte {
	p.mu.Lock()
	for i := len(p.free) - 1; i >= 0; i-- {
		if uint32(len(p.free[i])) == size {
			buf := p.free[i]
			p.free = append(p.free[:i], p.free[i+1:]...)
			p.mu.Unlock()
			return buf
		}
	}
	p.mu.Unlock()
	return make([]byte, size)
}

// Checkin returns a chunk to the pool, discarding it once the pool is at
// its high-water mark.
func (p *Pool) Checkin(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.maxChunks {
		return
	}
	p.free = append(p.free, buf)
}

// Len reports the number of chunks currently cached, for tests/metrics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
