// Package dberrors holds the sentinel errors surfaced across the memstore
// packages, grounded in the pack-wide convention of a small var block of
// errors.New sentinels rather than ad hoc per-call error strings.
package dberrors

import "errors"

var (
	// ErrUnexpectedSnapshot is returned by MemStore.ClearSnapshot when the
	// passed reference is not the current snapshot set.
	ErrUnexpectedSnapshot = errors.New("memstore: clear called with unexpected snapshot")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("memstore: closed")
)
