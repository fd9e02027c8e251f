// Package pebbledb implements db.Database on top of CockroachDB's Pebble.
package pebbledb

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/log"
)

var (
	_ db.Database = (*PebbleDB)(nil)
	_ db.WriteTx  = (*WriteTx)(nil)
)

// PebbleDB implements db.Database.
type PebbleDB struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

// New opens (or creates) a PebbleDB with opts.
func New(opts db.Options) (*PebbleDB, error) {
	o := &pebble.Options{
		Levels: []pebble.LevelOptions{{Compression: pebble.SnappyCompression}},
	}
	path := opts.Path
	if opts.InMemory {
		o.FS = vfs.NewMem()
		if path == "" {
			path = "mem"
		}
	} else if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return nil, err
	}
	pdb, err := pebble.Open(path, o)
	if err != nil {
		return nil, fmt.Errorf("cannot open pebble at %s: %w", path, err)
	}
	writeOpts := pebble.Sync
	if opts.NoSync {
		writeOpts = pebble.NoSync
	}
	log.Debugw("pebble database opened", "path", path, "inMemory", opts.InMemory, "sync", !opts.NoSync)
	return &PebbleDB{db: pdb, writeOpts: writeOpts}, nil
}

// Get implements db.Reader.
func (d *PebbleDB) Get(k []byte) ([]byte, error) {
	return get(d.db, k)
}

// Iterate implements db.Reader.
func (d *PebbleDB) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	return iterate(d.db, prefix, callback)
}

// WriteTx returns an indexed batch, so the transaction reads its own writes.
func (d *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{batch: d.db.NewIndexedBatch(), writeOpts: d.writeOpts}
}

// Close closes the PebbleDB.
func (d *PebbleDB) Close() error {
	return d.db.Close()
}

// DiskUsage implements db.Database.
func (d *PebbleDB) DiskUsage() uint64 {
	return d.db.Metrics().DiskSpaceUsage()
}

// Compact compacts the whole key range.
func (d *PebbleDB) Compact() error {
	// from https://github.com/cockroachdb/pebble/issues/1474#issuecomment-1022313365
	iter, err := d.db.NewIter(nil)
	if err != nil {
		return err
	}
	var first, last []byte
	if iter.First() {
		first = append(first, iter.Key()...)
	}
	if iter.Last() {
		last = append(last, iter.Key()...)
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if first == nil {
		return nil
	}
	// the end bound is exclusive
	return d.db.Compact(first, keyUpperBound(last), true)
}

// WriteTx implements db.WriteTx over a pebble batch.
type WriteTx struct {
	batch     *pebble.Batch
	writeOpts *pebble.WriteOptions
}

// Get implements db.Reader.
func (tx *WriteTx) Get(k []byte) ([]byte, error) {
	if tx.batch == nil {
		return nil, db.ErrTxClosed
	}
	return get(tx.batch, k)
}

// Iterate implements db.Reader.
func (tx *WriteTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	if tx.batch == nil {
		return db.ErrTxClosed
	}
	return iterate(tx.batch, prefix, callback)
}

// Set implements db.WriteTx.
func (tx *WriteTx) Set(k, v []byte) error {
	if tx.batch == nil {
		return db.ErrTxClosed
	}
	return tx.batch.Set(k, v, nil)
}

// Delete implements db.WriteTx.
func (tx *WriteTx) Delete(k []byte) error {
	if tx.batch == nil {
		return db.ErrTxClosed
	}
	return tx.batch.Delete(k, nil)
}

// Commit implements db.WriteTx.
func (tx *WriteTx) Commit() error {
	if tx.batch == nil {
		return fmt.Errorf("cannot commit pebble tx: %w", db.ErrTxClosed)
	}
	err := tx.batch.Commit(tx.writeOpts)
	tx.batch = nil
	return err
}

// Discard implements db.WriteTx.
func (tx *WriteTx) Discard() {
	if tx.batch == nil {
		// pebble pools closed batches, a second Close would race with the
		// next user of the object
		return
	}
	_ = tx.batch.Close()
	tx.batch = nil
}

func get(reader pebble.Reader, k []byte) ([]byte, error) {
	v, closer, err := reader.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	// v is only valid until closer is closed
	out := append([]byte(nil), v...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func iterate(reader pebble.Reader, prefix []byte, callback func(k, v []byte) bool) (err error) {
	iter, err := reader.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer func() {
		if errC := iter.Close(); err == nil {
			err = errC
		}
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// keyUpperBound returns the smallest key greater than every key prefixed by
// b, or nil if there is none.
func keyUpperBound(b []byte) []byte {
	end := append([]byte(nil), b...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
