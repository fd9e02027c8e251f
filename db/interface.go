// Package db defines the key-value storage used by the ballot state and the
// ledger blockstore.
package db

import (
	"fmt"
	"io"
)

const (
	// TypePebble stores the data on disk with PebbleDB.
	TypePebble = "pebble"
	// TypeMemory runs PebbleDB over an in-memory filesystem. Nothing survives
	// a restart.
	TypeMemory = "memory"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = fmt.Errorf("key not found")
	// ErrTxClosed is returned when a WriteTx is used after Commit or Discard.
	ErrTxClosed = fmt.Errorf("txn already committed or discarded")
)

// Options defines generic parameters for creating a new Database.
type Options struct {
	Path string
	// InMemory makes the backend ignore Path and keep everything in memory.
	InMemory bool
	// NoSync commits without waiting for the write to reach the disk. A crash
	// may lose the last commits, so it is meant for tests and throwaway nodes.
	NoSync bool
}

// Database wraps all database operations. All methods are safe for concurrent
// use.
type Database interface {
	io.Closer
	Reader

	// WriteTx creates a new write transaction.
	WriteTx() WriteTx
	// Compact compacts the underlying storage.
	Compact() error
	// DiskUsage returns the bytes used by the whole underlying storage, not
	// only by the keys visible through this Database.
	DiskUsage() uint64
}

// Reader contains the read-only database operations.
type Reader interface {
	// Get retrieves the value for the given key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)

	// Iterate calls callback in key order with every pair whose key starts
	// with prefix, passing the key without the prefix. It stops when callback
	// returns false. The slices are only valid during the callback.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a batch of writes that is applied atomically on Commit. Reads
// through a WriteTx observe its own pending writes.
type WriteTx interface {
	Reader

	// Set adds or replaces a key-value pair.
	Set(key []byte, value []byte) error
	// Delete deletes a key and its value.
	Delete(key []byte) error
	// Commit applies the writes. Calling it twice, or after Discard, returns
	// ErrTxClosed.
	Commit() error
	// Discard drops the pending writes. It is a no-op after Commit or Discard,
	// so it can always be deferred.
	Discard()
}

// UnwrapWriteTx returns the innermost WriteTx of a chain of wrappers
// implementing Unwrap.
func UnwrapWriteTx(tx WriteTx) WriteTx {
	for {
		wtx, ok := tx.(interface{ Unwrap() WriteTx })
		if !ok {
			return tx
		}
		tx = wtx.Unwrap()
	}
}
