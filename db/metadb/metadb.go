// Package metadb opens the database of a ballot node and splits it into the
// stores each component owns.
package metadb

import (
	"cmp"
	"fmt"
	"os"
	"testing"

	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/db/pebbledb"
	"go.vocdoni.io/zkballot/db/prefixeddb"
)

var (
	// StatePrefix scopes the ballot state (candidates, commitments, nullifiers).
	StatePrefix = []byte("s/")
	// LedgerPrefix scopes the blockstore of the ledger.
	LedgerPrefix = []byte("l/")
)

// New opens a database of the given type under dir.
func New(typ, dir string) (db.Database, error) {
	return open(db.Options{Path: dir}, typ)
}

func open(opts db.Options, typ string) (db.Database, error) {
	switch typ {
	case db.TypePebble:
	case db.TypeMemory:
		opts.InMemory = true
	default:
		return nil, fmt.Errorf("invalid dbType: %q. Available types: %q %q",
			typ, db.TypePebble, db.TypeMemory)
	}
	return pebbledb.New(opts)
}

// Stores is a node database split by component. Closing it closes the shared
// database.
type Stores struct {
	db.Database
	State  db.Database
	Ledger db.Database
}

// Split scopes database into the state and ledger stores.
func Split(database db.Database) *Stores {
	return &Stores{
		Database: database,
		State:    prefixeddb.NewPrefixedDatabase(database, StatePrefix),
		Ledger:   prefixeddb.NewPrefixedDatabase(database, LedgerPrefix),
	}
}

// Open opens the node database under dir and splits it.
func Open(typ, dir string) (*Stores, error) {
	database, err := New(typ, dir)
	if err != nil {
		return nil, err
	}
	return Split(database), nil
}

// ForTest returns the database type used by tests, overridable with
// BALLOT_DB_TYPE.
func ForTest() (typ string) {
	return cmp.Or(os.Getenv("BALLOT_DB_TYPE"), db.TypePebble)
}

// NewTest opens a throwaway database closed at the end of the test.
func NewTest(tb testing.TB) db.Database {
	database, err := open(db.Options{Path: tb.TempDir(), NoSync: true}, ForTest())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { database.Close() })
	return database
}
