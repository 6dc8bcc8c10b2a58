// Command memstoredemo wires pkg/memstore, pkg/wal and pkg/flush together
// into a small runnable region-server stand-in: N concurrent writer
// goroutines (dispatched through an ants pool, same as the teacher's own
// benchmark harness) append cells through the WAL and into the MemStore,
// while a background Flusher periodically rotates the live set aside and
// "flushes" it by logging its cell count and time range — standing in for the on-disk
// column-family store a real region server would hand it to.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"

	"cometkv/pkg/arena"
	"cometkv/pkg/cell"
	"cometkv/pkg/cellset"
	"cometkv/pkg/config"
	"cometkv/pkg/flush"
	"cometkv/pkg/memstore"
	"cometkv/pkg/mvcc"
	"cometkv/pkg/timerange"
	"cometkv/pkg/wal"
)

func main() {
	walDir := flag.String("wal-dir", "./memstoredemo-data", "directory for the write-ahead log")
	writers := flag.Int("writers", 8, "number of concurrent writer goroutines")
	duration := flag.Duration("duration", 15*time.Second, "how long to run before shutting down")
	flushInterval := flag.Duration("flush-interval", 3*time.Second, "flush tick interval")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.Default()
	family := config.DefaultFamilyDescriptor()
	family.RowPrefixBloomLength = 4

	pool := arena.NewPool(cfg.ArenaPoolMaxChunks)
	mv := mvcc.New()
	store := memstore.New(memstore.Options{
		Config: cfg,
		Family: family,
		Pool:   pool,
		MVCC:   mv,
		Less:   cell.Primary,
		Logger: logger,
	})

	log, err := wal.Open(*walDir, logger)
	if err != nil {
		logger.Error("failed to open wal", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			logger.Error("failed to close wal", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	flusher := flush.New(store, *flushInterval, 1<<16, logFlush(logger), logger)
	flusher.Start(sigCtx)

	workerPool, err := ants.NewPool(*writers, ants.WithPreAlloc(true))
	if err != nil {
		logger.Error("failed to create worker pool", "error", err)
		os.Exit(1)
	}
	defer workerPool.Release()

	done := make(chan struct{}, *writers)
	for i := 0; i < *writers; i++ {
		i := i
		err := workerPool.Submit(func() {
			writeLoop(sigCtx, i, store, log, mv, logger)
			done <- struct{}{}
		})
		if err != nil {
			logger.Error("failed to submit writer", "error", err)
		}
	}

	for i := 0; i < *writers; i++ {
		<-done
	}
	logger.Info("shutdown complete", "live_key_size_bytes", store.KeySize())
}

func writeLoop(ctx context.Context, worker int, store *memstore.MemStore, log *wal.WAL, mv *mvcc.Controller, logger *slog.Logger) {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		row := []byte(fmt.Sprintf("row-%04d", rnd.Intn(1000)))
		qualifier := []byte("col")
		value := make([]byte, 64)
		rnd.Read(value)

		c := cell.New(row, []byte("cf"), qualifier, value, time.Now().UnixNano(), cell.Put)
		seq := mv.AssignWriteSeq()
		c.WriteSeq = seq

		if err := log.Append(c); err != nil {
			logger.Error("wal append failed", "worker", worker, "error", err)
			continue
		}
		store.Add(c, seq)
		mv.CompleteWrite(seq)
	}
}

func logFlush(logger *slog.Logger) flush.Func {
	return func(ctx context.Context, snapshot *cellset.Set, timeRange *timerange.Tracker) error {
		logger.Info("flushing snapshot",
			"cells", snapshot.Len(),
			"min_ts", timeRange.Minimum(),
			"max_ts", timeRange.Maximum())
		return nil
	}
}
