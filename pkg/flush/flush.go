// Package flush drives the periodic snapshot/clearSnapshot handoff between
// a memstore.MemStore and its on-disk store, the same role
// CometKV's kv.go startFlushThread plays for its own memtable/sst pair,
// rebuilt around MemStore's two-phase snapshot contract instead of a single
// atomic swap, and adding the teacher's own moving-average stats tracking
// (pkg/memtable/base.EMBase.Prune) for the flush duration instead of a
// bare GC-pause print.
package flush

import (
	"context"
	"log/slog"
	"time"

	"github.com/RussellLuo/timingwheel"
	movingaverage "github.com/RobinUS2/golang-moving-average"

	"cometkv/pkg/cellset"
	"cometkv/pkg/memstore"
	"cometkv/pkg/timerange"
)

// Func persists one flushed generation to permanent storage. Returning an
// error leaves the snapshot in place so the next tick retries it.
type Func func(ctx context.Context, snapshot *cellset.Set, timeRange *timerange.Tracker) error

// Flusher periodically snapshots a MemStore and hands the frozen generation
// to a Func, clearing the snapshot only after Func succeeds.
type Flusher struct {
	store        *memstore.MemStore
	interval     time.Duration
	minFlushSize int64
	flushFn      Func
	logger       *slog.Logger

	timer *timingwheel.TimingWheel
	moAvg *movingaverage.MovingAverage
}

// New builds a Flusher. minFlushSize is the live-set key size (in bytes)
// below which a tick is a no-op — mirrors the original's
// MIN_FLUSH_SIZE-style throttle against flushing near-empty memstores.
func New(store *memstore.MemStore, interval time.Duration, minFlushSize int64, flushFn Func, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		store:        store,
		interval:     interval,
		minFlushSize: minFlushSize,
		flushFn:      flushFn,
		logger:       logger,
		timer:        timingwheel.NewTimingWheel(time.Millisecond, 60),
		moAvg:        movingaverage.New(20), // rolling average of the last 20 flushes
	}
}

// Start runs the flush loop until ctx is cancelled. It does not block.
func (f *Flusher) Start(ctx context.Context) {
	f.timer.Start()
	var tick func()
	tick = func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		f.flushOnce(ctx)
		f.timer.AfterFunc(f.interval, tick)
	}
	f.timer.AfterFunc(f.interval, tick)
	go func() {
		<-ctx.Done()
		f.timer.Stop()
	}()
}

func (f *Flusher) flushOnce(ctx context.Context) {
	// A snapshot retained by a failed flush is retried regardless of size.
	if f.store.GetSnapshot().IsEmpty() && f.store.KeySize() < f.minFlushSize {
		return
	}

	f.store.Snapshot()
	snap := f.store.GetSnapshot()
	if snap.IsEmpty() {
		return
	}
	timeRange := f.store.GetSnapshotTimeRange()

	start := time.Now()
	err := f.flushFn(ctx, snap, timeRange)
	elapsed := time.Since(start)
	f.moAvg.Add(float64(elapsed.Nanoseconds()))

	if err != nil {
		f.logger.Error("flush failed, snapshot retained for retry", "error", err, "duration", elapsed)
		return
	}
	if err := f.store.ClearSnapshot(snap); err != nil {
		f.logger.Error("clear snapshot failed after successful flush", "error", err)
		return
	}
	f.logger.Info("flush complete",
		"duration", elapsed,
		"avg_duration", time.Duration(f.moAvg.Avg()),
		"cells", snap.Len())
}
