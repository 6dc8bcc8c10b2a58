package memstore

import (
	"cometkv/pkg/cell"
	"cometkv/pkg/cellset"
)

// Scanner is a single point-in-time view over one MemStore's live and
// snapshot generations, merged into one MVCC-filtered forward cursor. It
// pins both generations' Arenas for its entire lifetime so a concurrent
// Snapshot/ClearSnapshot can never invalidate bytes it still holds a
// pointer into — the same pin/unpin discipline arena.Arena already
// exposes for exactly this purpose.
type Scanner struct {
	store     *MemStore
	readPoint uint64

	liveView *cellset.Set
	snapView *cellset.Set

	liveArena *arenaRef
	snapArena *arenaRef

	liveIt *cellset.Iterator
	snapIt *cellset.Iterator

	liveCur, snapCur cell.Cell
	liveOK, snapOK   bool

	reseekCount int
	linearLimit int

	closed bool
}

// arenaRef is the tiny pin-holding handle a Scanner keeps per generation;
// it may be nil when that generation was built without an Arena.
type arenaRef struct {
	pinner interface{ UnpinScanner() }
}

func (r *arenaRef) unpin() {
	if r != nil && r.pinner != nil {
		r.pinner.UnpinScanner()
	}
}

func newScanner(m *MemStore, readPoint uint64) *Scanner {
	s := &Scanner{
		store:       m,
		readPoint:   readPoint,
		liveView:    m.liveSet,
		snapView:    m.snapshotSet,
		linearLimit: m.opts.Config.ReseekLinearLimit,
	}
	if m.liveArena != nil {
		m.liveArena.PinScanner()
		s.liveArena = &arenaRef{pinner: m.liveArena}
	}
	if m.snapshotArena != nil {
		m.snapshotArena.PinScanner()
		s.snapArena = &arenaRef{pinner: m.snapshotArena}
	}
	s.liveIt = s.liveView.Iterator()
	s.snapIt = s.snapView.Iterator()
	s.advanceLive()
	s.advanceSnap()
	return s
}

// advanceLive pulls the live iterator forward to the next cell visible at
// readPoint (WriteSeq <= readPoint), or marks it exhausted.
func (s *Scanner) advanceLive() {
	for s.liveIt.Valid() {
		c := s.liveIt.Cell()
		if c.WriteSeq <= s.readPoint {
			s.liveCur, s.liveOK = c, true
			return
		}
		s.liveIt.Next()
	}
	s.liveOK = false
}

func (s *Scanner) advanceSnap() {
	for s.snapIt.Valid() {
		c := s.snapIt.Cell()
		if c.WriteSeq <= s.readPoint {
			s.snapCur, s.snapOK = c, true
			return
		}
		s.snapIt.Next()
	}
	s.snapOK = false
}

// Peek returns the next cell this scanner would yield, without consuming it.
func (s *Scanner) Peek() (cell.Cell, bool) {
	switch {
	case s.liveOK && s.snapOK:
		if s.store.opts.Less(s.liveCur, s.snapCur) {
			return s.liveCur, true
		}
		return s.snapCur, true
	case s.liveOK:
		return s.liveCur, true
	case s.snapOK:
		return s.snapCur, true
	default:
		return cell.Cell{}, false
	}
}

// Next consumes and returns the next visible cell, advancing whichever
// source (or both, if they held an equal cell) produced it.
func (s *Scanner) Next() (cell.Cell, bool) {
	c, ok := s.Peek()
	if !ok {
		return cell.Cell{}, false
	}
	tookLive := s.liveOK && cell.Equal(s.store.opts.Less, s.liveCur, c)
	tookSnap := s.snapOK && cell.Equal(s.store.opts.Less, s.snapCur, c)
	if tookLive {
		s.liveIt.Next()
		s.advanceLive()
	}
	if tookSnap {
		s.snapIt.Next()
		s.advanceSnap()
	}
	return c, true
}

// Seek repositions both underlying iterators to the first visible cell >= c,
// counting as a logarithmic seek (resets the linear-reseek budget).
func (s *Scanner) Seek(c cell.Cell) bool {
	s.liveIt = s.liveView.TailRange(c).Iterator()
	s.snapIt = s.snapView.TailRange(c).Iterator()
	s.reseekCount = 0
	s.advanceLive()
	s.advanceSnap()
	_, ok := s.Peek()
	return ok
}

// Reseek advances to the first visible cell >= c. While the number of plain
// Next() steps it would take stays within the configured linear-advance
// budget it walks forward one cell at a time (cheap when c is close to the
// scanner's current position, e.g. during a row-by-row merge); once that
// budget is exhausted it falls back to a full logarithmic Seek, matching the
// original ReseekableScanner's linear/binary hybrid.
func (s *Scanner) Reseek(c cell.Cell) bool {
	steps := 0
	for steps < s.linearLimit {
		cur, ok := s.Peek()
		if !ok {
			return false
		}
		if !s.store.opts.Less(cur, c) {
			return true
		}
		s.Next()
		steps++
	}
	s.reseekCount++
	return s.Seek(c)
}

// Close releases both generations' Arena pins. Safe to call once; calling it
// more than once is a no-op.
func (s *Scanner) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.liveArena.unpin()
	s.snapArena.unpin()
}

// SequenceId reports cell.MaxWriteSeq: a MemStoreScanner always outranks
// every on-disk storefile scanner when a caller merging them breaks a
// tie on identical keys, since the memstore is always the most recent
// generation of the data.
func (s *Scanner) SequenceId() uint64 { return cell.MaxWriteSeq }

// ShouldUseScanner delegates to the owning MemStore's ShouldSeek, letting a
// caller skip constructing or reading from a scanner whose memstore cannot
// possibly hold anything in [lo,hi].
func (s *Scanner) ShouldUseScanner(lo, hi, oldestUnexpiredTs int64) bool {
	return s.store.ShouldSeek(lo, hi, oldestUnexpiredTs)
}

// PassesDeleteColumnCheck is the scanner-side fast path for the original's
// delete-tracking: when neither generation recorded any delete marker at
// all, every cell in the scan trivially passes and callers can skip the
// full DeleteTracker machinery.
func (s *Scanner) PassesDeleteColumnCheck() bool {
	return s.store.deletesInLive.Load() == 0 && s.store.deletesInSnapshot.Load() == 0
}

// PassesRowKeyPrefixBloomFilter reports whether either generation's Bloom
// filter admits row; true whenever bloom filtering is disabled.
func (s *Scanner) PassesRowKeyPrefixBloomFilter(row []byte) bool {
	probe := cell.Cell{Row: row}
	return s.liveView.MayContainRowPrefix(probe) || s.snapView.MayContainRowPrefix(probe)
}
