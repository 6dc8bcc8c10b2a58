// Package wal is the durability layer a MemStore sits in front of: every
// cell accepted into the live set is first appended here, so a crash can
// replay everything the memstore had not yet flushed to disk.
//
// Grounded on the sibling teacher-pack repo's pkg/wal (binary-framed
// length-prefixed entries written through a buffered, fsync'd *os.File),
// adapted to carry cell.Cell instead of a flat key/value pair and to queue
// writes through the teacher's own async-write idiom — a
// github.com/alphadose/zenq/v2.ZenQ fed by a dedicated writer goroutine,
// the same pattern pkg/memtable/segment_ring.Segment uses for its
// asyncKeyPtrChan — rather than a plain buffered channel.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/alphadose/zenq/v2"

	"cometkv/pkg/cell"
	"cometkv/pkg/dberrors"
)

// record is one queued append: the cell (carrying the MVCC write sequence
// the caller assigned it in WriteSeq), and a channel on which the writer
// goroutine sends the write result once the entry is fsync'd or has failed.
type record struct {
	c    cell.Cell
	done chan error
}

// WAL is an append-only, fsync-on-write log of cells, replayable in order.
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	filePath string

	queue  *zenq.ZenQ[*record]
	closed atomic.Bool
	logger *slog.Logger
}

// Open creates or reopens the WAL file wal.log under dir and starts its
// writer goroutine.
func Open(dir string, logger *slog.Logger) (*WAL, error) {
	if dir == "" {
		return nil, fmt.Errorf("wal: empty directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("wal: create directory: %w", err)
	}
	path := filepath.Join(dir, "wal.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("wal: open file: %w", err)
	}

	w := &WAL{
		file:     file,
		writer:   bufio.NewWriter(file),
		filePath: path,
		queue:    zenq.New[*record](1 << 14),
		logger:   logger,
	}
	go w.run()
	return w, nil
}

// Append enqueues c for durable write and blocks until it is fsync'd to
// disk, returning any write error. Append after Close returns
// dberrors.ErrClosed instead of writing to the closed queue.
func (w *WAL) Append(c cell.Cell) error {
	if w.closed.Load() {
		return dberrors.ErrClosed
	}
	rec := &record{c: c, done: make(chan error, 1)}
	w.queue.Write(rec)
	return <-rec.done
}

func (w *WAL) run() {
	for {
		rec, open := w.queue.Read()
		if !open {
			return
		}
		err := w.writeAndSync(rec.c)
		if err != nil {
			w.logger.Error("wal write failed", "error", err)
		}
		rec.done <- err
	}
}

func (w *WAL) writeAndSync(c cell.Cell) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := writeCell(w.writer, c); err != nil {
		return fmt.Errorf("wal: encode entry: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	return nil
}

// Replay reads every entry from the start of the log whose write sequence
// is >= from, invoking fn for each in file order. It does not affect the
// live writer goroutine or file offset.
func (w *WAL) Replay(from uint64, fn func(cell.Cell) error) error {
	w.mu.Lock()
	if err := w.writer.Flush(); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("wal: flush before replay: %w", err)
	}
	w.mu.Unlock()

	file, err := os.Open(w.filePath)
	if err != nil {
		return fmt.Errorf("wal: open for replay: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			w.logger.Warn("wal: close replay file failed", "error", cerr)
		}
	}()

	reader := bufio.NewReader(file)
	for {
		c, err := readCell(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("wal: decode entry: %w", err)
		}
		if c.WriteSeq < from {
			continue
		}
		if err := fn(c); err != nil {
			return fmt.Errorf("wal: replay callback: %w", err)
		}
	}
}

// Close stops the writer goroutine and closes the underlying file. Safe to
// call once; a second call returns nil without effect.
func (w *WAL) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.queue.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush on close: %w", err)
	}
	return w.file.Close()
}

func writeUint32Bytes(w *bufio.Writer, b []byte) error {
	if len(b) > 1<<31 {
		return fmt.Errorf("field too large: %d bytes", len(b))
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readUint32Bytes(r *bufio.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeCell(w *bufio.Writer, c cell.Cell) error {
	if err := binary.Write(w, binary.LittleEndian, c.Timestamp); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(c.Type)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, c.WriteSeq); err != nil {
		return err
	}
	for _, field := range [][]byte{c.Row, c.Family, c.Qualifier, c.Value} {
		if err := writeUint32Bytes(w, field); err != nil {
			return err
		}
	}
	return nil
}

func readCell(r *bufio.Reader) (cell.Cell, error) {
	var c cell.Cell
	if err := binary.Read(r, binary.LittleEndian, &c.Timestamp); err != nil {
		return c, err
	}
	var typ uint8
	if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
		return c, err
	}
	c.Type = cell.Type(typ)
	if err := binary.Read(r, binary.LittleEndian, &c.WriteSeq); err != nil {
		return c, err
	}
	var err error
	if c.Row, err = readUint32Bytes(r); err != nil {
		return c, err
	}
	if c.Family, err = readUint32Bytes(r); err != nil {
		return c, err
	}
	if c.Qualifier, err = readUint32Bytes(r); err != nil {
		return c, err
	}
	if c.Value, err = readUint32Bytes(r); err != nil {
		return c, err
	}
	return c, nil
}
