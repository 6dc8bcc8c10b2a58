// Package memstore implements the in-memory write buffer that sits in
// front of an on-disk, log-structured column-family store: the live and
// snapshot OrderedCellSets, their Arenas, size accounting, and the
// flush-handoff protocol (snapshot -> clearSnapshot).
//
// Ported from the semantics of Apache HBase's MemStore (regionserver
// package) onto the teacher repo's concurrency idiom: a copy-on-write
// tidwall/btree-backed OrderedCellSet under a single sync.RWMutex, the same
// lock-discipline shape the teacher uses for its own BTreeGCoW variants,
// generalized to the read/write-lock split the spec requires.
package memstore

import (
	"log/slog"
	"sync"

	"cometkv/pkg/arena"
	"cometkv/pkg/cell"
	"cometkv/pkg/cellset"
	"cometkv/pkg/config"
	"cometkv/pkg/dberrors"
	"cometkv/pkg/rowtracker"
	"cometkv/pkg/timerange"
)

// DeepOverhead is the fixed heap overhead attributed to an empty MemStore
// (its locks, counters and two ordered sets), mirroring the original's
// ClassSize.align(FIXED_OVERHEAD + ...) constant.
const DeepOverhead int64 = 512

// ReadPointer supplies the MVCC read point a scanner's advancement must
// honor: a cell with WriteSeq greater than ReadPoint() is invisible to it.
// Satisfied by *cometkv/pkg/mvcc.Controller; the indirection exists only so
// tests can substitute a fixed read point without a live Controller.
type ReadPointer interface {
	ReadPoint() uint64
}

// Options configures a new MemStore.
type Options struct {
	Config config.MemStoreConfig
	Family config.FamilyDescriptor
	Pool   *arena.Pool   // shared ArenaPool; nil makes each Arena allocate its chunks directly
	MVCC   ReadPointer   // process-wide MVCC controller; nil means every write is immediately visible
	Less   cell.LessFunc
	Logger *slog.Logger
}

// MemStore is the write buffer for a single column family of a single
// region. All exported methods are safe for concurrent use by many writer
// and reader goroutines; see the package doc for the lock discipline.
type MemStore struct {
	opts   Options
	logger *slog.Logger

	lock sync.RWMutex // readers+writers take RLock; snapshot/clearSnapshot take Lock

	liveSet   *cellset.Set
	liveTime  *timerange.Tracker
	liveArena *arena.Arena

	snapshotSet   *cellset.Set
	snapshotTime  *timerange.Tracker
	snapshotArena *arena.Arena

	heapSize         atomicInt64
	snapshotHeapSize atomicInt64

	smallestWriteSeq atomicUint64

	deletesInLive     atomicUint64
	deletesInSnapshot atomicUint64
}

// New creates a MemStore for one column family with a fixed comparator and
// the given arena/bloom configuration.
func New(opts Options) *MemStore {
	if opts.Less == nil {
		opts.Less = cell.Primary
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &MemStore{
		opts:         opts,
		logger:       opts.Logger,
		liveTime:     timerange.New(),
		snapshotTime: timerange.New(),
	}
	m.liveSet = cellset.New(opts.Less, opts.Family.RowPrefixBloomLength)
	m.snapshotSet = cellset.New(opts.Less, opts.Family.RowPrefixBloomLength)
	if opts.Config.UseArena {
		m.liveArena = arena.New(opts.Config.ArenaChunkBytes, opts.Pool)
	}
	m.heapSize.Store(DeepOverhead)
	m.smallestWriteSeq.Store(cell.MaxWriteSeq)
	return m
}

// Add inserts c into the live set, cloning its bytes into the live arena
// when one is configured, and returns the heap delta the insert caused (0 if
// c was already present — the set never overwrites).
func (m *MemStore) Add(c cell.Cell, seqNum uint64) int64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.addLocked(c, seqNum)
}

// Delete is identical to Add — the delete semantics live entirely in
// c.Type, which Add preserves verbatim.
func (m *MemStore) Delete(c cell.Cell, seqNum uint64) int64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.addLocked(c, seqNum)
}

// addLocked performs the insert under an already-held read lock.
func (m *MemStore) addLocked(c cell.Cell, seqNum uint64) int64 {
	c.WriteSeq = seqNum
	c = m.cloneIntoArena(c)

	if !m.liveSet.Add(c) {
		return 0
	}

	delta := c.HeapSize()
	m.heapSize.Add(delta)
	m.liveTime.Update(c.Timestamp)
	if c.Type.IsDelete() {
		m.deletesInLive.Add(1)
	}
	m.smallestWriteSeq.ShrinkTo(seqNum)
	return delta
}

func (m *MemStore) cloneIntoArena(c cell.Cell) cell.Cell {
	if m.liveArena == nil {
		return c
	}
	n := c.Length()
	alloc, ok := m.liveArena.Allocate(n)
	if !ok {
		return c // oversize: caller's original bytes are kept, per spec
	}
	buf := alloc.Buffer
	off := 0
	row := copyInto(buf, &off, c.Row)
	family := copyInto(buf, &off, c.Family)
	qualifier := copyInto(buf, &off, c.Qualifier)
	value := copyInto(buf, &off, c.Value)
	c.Row, c.Family, c.Qualifier, c.Value = row, family, qualifier, value
	return c
}

func copyInto(buf []byte, off *int, src []byte) []byte {
	dst := buf[*off : *off+len(src)]
	copy(dst, src)
	*off += len(src)
	return dst
}

// UpdateColumnValue implements the in-place counter-update path: it inserts
// a new Put with memstoreTS=0 (immediately visible to every reader) and, in
// the same read-lock scope, removes any strictly-older Put for the exact
// same (row, family, qualifier) — leaving delete tombstones and other
// qualifiers untouched. It returns the net heap delta (insert minus every
// removed cell's heap size).
func (m *MemStore) UpdateColumnValue(row, family, qualifier []byte, newValue []byte, now int64, seqNum uint64) int64 {
	m.lock.RLock()
	defer m.lock.RUnlock()

	newCell := cell.New(row, family, qualifier, newValue, now, cell.Put)
	delta := m.addLocked(newCell, 0) // memstoreTS = 0: unconditionally visible

	firstOnRow := cell.CreateFirstOnRow(row, family, qualifier)
	view := m.liveSet.TailRange(firstOnRow)
	it := view.Iterator()
	for it.Valid() {
		old := it.Cell()
		if !cell.SameRow(old, newCell) {
			break // rows don't match: the tail walk has left this row, stop
		}
		if cell.Equal(m.opts.Less, old, newCell) {
			it.Next()
			continue // this is the cell we just inserted; skip it
		}
		if !sameQualifier(old, qualifier) {
			it.Next()
			continue
		}
		if old.Type == cell.Put {
			if m.liveSet.Remove(old) {
				sz := old.HeapSize()
				delta -= sz
				m.heapSize.Add(-sz)
			}
		}
		it.Next()
	}
	return delta
}

func sameQualifier(c cell.Cell, qualifier []byte) bool {
	if len(c.Qualifier) != len(qualifier) {
		return false
	}
	for i := range qualifier {
		if c.Qualifier[i] != qualifier[i] {
			return false
		}
	}
	return true
}

// GetNextRow returns the smallest cell in either set whose row is strictly
// greater than c.Row, or the globally smallest cell if c is nil.
func (m *MemStore) GetNextRow(c *cell.Cell) (cell.Cell, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	var bound cell.Cell
	if c == nil {
		bound = cell.Cell{}
	} else {
		bound = cell.CreateFirstOnNextRow(c.Row)
	}

	best, found := firstAtOrAfter(m.liveSet, bound)
	if snap, ok := firstAtOrAfter(m.snapshotSet, bound); ok {
		if !found || m.opts.Less(snap, best) {
			best, found = snap, true
		}
	}
	return best, found
}

func firstAtOrAfter(set *cellset.Set, bound cell.Cell) (cell.Cell, bool) {
	it := set.TailRange(bound).Iterator()
	if !it.Valid() {
		return cell.Cell{}, false
	}
	return it.Cell(), true
}

// Snapshot rotates the live set aside for the flusher: if a snapshot is
// already pending it logs a warning and does nothing (DoubleSnapshot); if
// the live set is empty it does nothing either. Otherwise it atomically
// swaps live<->snapshot references, resets live-side accounting, and
// allocates a fresh live Arena (if arenas are enabled) so in-flight scanners
// of the old arena are unaffected.
func (m *MemStore) Snapshot() {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.snapshotSet.IsEmpty() {
		m.logger.Warn("snapshot called again without clearing previous; doing nothing")
		return
	}
	if m.liveSet.IsEmpty() {
		return
	}

	m.snapshotSet = m.liveSet
	m.snapshotTime = m.liveTime
	m.snapshotArena = m.liveArena
	m.snapshotHeapSize.Store(m.heapSize.Load() - DeepOverhead)
	m.deletesInSnapshot.Store(m.deletesInLive.Load())

	m.liveSet = cellset.New(m.opts.Less, m.opts.Family.RowPrefixBloomLength)
	m.liveTime = timerange.New()
	if m.opts.Config.UseArena {
		m.liveArena = arena.New(m.opts.Config.ArenaChunkBytes, m.opts.Pool)
	} else {
		m.liveArena = nil
	}
	m.heapSize.Store(DeepOverhead)
	m.deletesInLive.Store(0)
	m.smallestWriteSeq.Store(cell.MaxWriteSeq)
}

// GetSnapshot returns the current snapshot set reference, for the flusher to
// read and eventually pass back to ClearSnapshot.
func (m *MemStore) GetSnapshot() *cellset.Set {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.snapshotSet
}

// GetSnapshotTimeRange returns the time range tracker frozen at the last
// Snapshot call.
func (m *MemStore) GetSnapshotTimeRange() *timerange.Tracker {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.snapshotTime
}

// ClearSnapshot completes a flush: ref must be exactly the set returned by
// the matching GetSnapshot, or ErrUnexpectedSnapshot is returned without
// touching any state. On success a fresh empty snapshot set is installed,
// the stolen Arena's Close runs after the write lock is released (so pool
// interaction never happens while holding it), and the Arena's chunks return
// to the pool once any scanner still pinning it releases its pin.
func (m *MemStore) ClearSnapshot(ref *cellset.Set) error {
	var stolen *arena.Arena
	err := func() error {
		m.lock.Lock()
		defer m.lock.Unlock()

		if m.snapshotSet != ref {
			return dberrors.ErrUnexpectedSnapshot
		}
		stolen = m.snapshotArena
		m.snapshotArena = nil
		m.snapshotSet = cellset.New(m.opts.Less, m.opts.Family.RowPrefixBloomLength)
		m.snapshotTime = timerange.New()
		m.snapshotHeapSize.Store(0)
		m.deletesInSnapshot.Store(0)
		return nil
	}()
	if err != nil {
		return err
	}
	if stolen != nil {
		stolen.Close()
	}
	return nil
}

// GetScanners returns a single-element slice containing one new
// MemStoreScanner over the current live and snapshot generations, filtered
// to the wired MVCC collaborator's current read point (or fully visible, if
// none is wired).
func (m *MemStore) GetScanners() []*Scanner {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return []*Scanner{newScanner(m, m.readPoint())}
}

// readPoint consults the wired MVCC collaborator for the current read
// point; every write is visible when none is wired.
func (m *MemStore) readPoint() uint64 {
	if m.opts.MVCC == nil {
		return cell.MaxWriteSeq
	}
	return m.opts.MVCC.ReadPoint()
}

// ShouldSeek reports whether this memstore may hold cells in [lo,hi] that
// have not yet expired past oldestUnexpiredTs.
func (m *MemStore) ShouldSeek(lo, hi int64, oldestUnexpiredTs int64) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	inRange := m.liveTime.IncludesRange(lo, hi) || m.snapshotTime.IncludesRange(lo, hi)
	if !inRange {
		return false
	}
	max := m.liveTime.Maximum()
	if m.snapshotTime.Maximum() > max {
		max = m.snapshotTime.Maximum()
	}
	return max >= oldestUnexpiredTs
}

// HeapSize returns the live set's current accounted heap size.
func (m *MemStore) HeapSize() int64 { return m.heapSize.Load() }

// KeySize returns HeapSize minus the fixed per-memstore overhead.
func (m *MemStore) KeySize() int64 { return m.heapSize.Load() - DeepOverhead }

// FlushableSize returns the frozen snapshot heap size if a flush is
// pending, or the live KeySize otherwise.
func (m *MemStore) FlushableSize() int64 {
	if s := m.snapshotHeapSize.Load(); s > 0 {
		return s
	}
	return m.KeySize()
}

// GetSmallestWriteSeq returns the minimum write sequence added to the live
// set since the last Snapshot, or cell.MaxWriteSeq if nothing has been added
// since. Cells removed from the live set in the meantime do not raise it.
func (m *MemStore) GetSmallestWriteSeq() uint64 { return m.smallestWriteSeq.Load() }

// GetRowKeyAtOrBefore returns the row of the greatest cell whose row is <=
// targetRow, searching the live set then the snapshot, pruning any
// timestamp-expired cell it walks past along the way. oldestUnexpiredTs of 0
// disables expiry pruning.
//
// Ported from the original's getRowKeyAtOrBefore(NavigableSet, tracker):
// first walk forward from the first possible key on targetRow looking for a
// non-delete candidate on that exact row; if none is found, walk backward
// row by row (memberOfPreviousRow) until a strictly-closer candidate row is
// found and a forward walk from it succeeds.
func (m *MemStore) GetRowKeyAtOrBefore(targetRow []byte, oldestUnexpiredTs int64) (cell.Cell, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	t := rowtracker.New(targetRow, oldestUnexpiredTs)
	m.rowKeyAtOrBeforeIn(m.liveSet, true, t)
	m.rowKeyAtOrBeforeIn(m.snapshotSet, false, t)
	return t.Result()
}

func (m *MemStore) rowKeyAtOrBeforeIn(set *cellset.Set, isLive bool, t *rowtracker.Tracker) {
	if set.IsEmpty() {
		return
	}
	if !m.walkForwardInSingleRow(set, isLive, t.TargetKey(), t) {
		m.getRowKeyBefore(set, isLive, t)
	}
}

// accountPrune mirrors a cell pruned out of set (because it expired past
// oldestUnexpiredTs) into the owning generation's heap and delete-marker
// counters, keeping them accurate after a RemoveVia outside Snapshot's
// normal rotation accounting.
func (m *MemStore) accountPrune(c cell.Cell, isLive bool) {
	delta := c.HeapSize()
	if isLive {
		m.heapSize.Add(-delta)
		if c.Type.IsDelete() {
			m.deletesInLive.Dec()
		}
		return
	}
	m.snapshotHeapSize.Add(-delta)
	if c.Type.IsDelete() {
		m.deletesInSnapshot.Dec()
	}
}

// walkForwardInSingleRow walks forward from firstOnRow, pruning expired
// cells, until it either finds a usable candidate (returns true) or walks
// off the end of the row (returns false).
func (m *MemStore) walkForwardInSingleRow(set *cellset.Set, isLive bool, firstOnRow cell.Cell, t *rowtracker.Tracker) bool {
	it := set.TailRange(firstOnRow).Iterator()
	for it.Valid() {
		c := it.Cell()
		if t.IsTooFar(c, firstOnRow) {
			break
		}
		if t.IsExpired(c) {
			if set.RemoveVia(it) {
				m.accountPrune(c, isLive)
			}
			it.Next()
			continue
		}
		if t.Handle(c) {
			return true
		}
		it.Next()
	}
	return false
}

// getRowKeyBefore walks backward row by row from the target, testing each
// new candidate row's better-ness before trying a forward walk from it.
func (m *MemStore) getRowKeyBefore(set *cellset.Set, isLive bool, t *rowtracker.Tracker) {
	firstOnRow := t.TargetKey()
	for {
		prev, ok := m.memberOfPreviousRow(set, isLive, t, firstOnRow)
		if !ok {
			return
		}
		if !t.IsBetterCandidate(prev) {
			return
		}
		firstOnRow = cell.CreateFirstOnRow(prev.Row, nil, nil)
		if m.walkForwardInSingleRow(set, isLive, firstOnRow, t) {
			return
		}
	}
}

// memberOfPreviousRow returns the greatest cell strictly before firstOnRow,
// pruning any expired cell it descends past along the way.
func (m *MemStore) memberOfPreviousRow(set *cellset.Set, isLive bool, t *rowtracker.Tracker, firstOnRow cell.Cell) (cell.Cell, bool) {
	it := set.HeadRange(firstOnRow, true).DescendingIterator()
	for it.Valid() {
		c := it.Cell()
		if t.IsExpired(c) {
			if set.RemoveVia(it) {
				m.accountPrune(c, isLive)
			}
			it.Next()
			continue
		}
		return c, true
	}
	return cell.Cell{}, false
}
