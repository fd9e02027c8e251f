package metadb

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/zkballot/db"
)

func TestSplit(t *testing.T) {
	c := qt.New(t)
	stores, err := Open(db.TypeMemory, "")
	c.Assert(err, qt.IsNil)
	defer stores.Close()

	wtx := stores.State.WriteTx()
	c.Assert(wtx.Set([]byte("k"), []byte("state")), qt.IsNil)
	c.Assert(wtx.Commit(), qt.IsNil)
	wtx = stores.Ledger.WriteTx()
	c.Assert(wtx.Set([]byte("k"), []byte("ledger")), qt.IsNil)
	c.Assert(wtx.Commit(), qt.IsNil)

	v, err := stores.State.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(v), qt.Equals, "state")
	v, err = stores.Get(append(LedgerPrefix, 'k'))
	c.Assert(err, qt.IsNil)
	c.Assert(string(v), qt.Equals, "ledger")
	_, err = stores.Get([]byte("k"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

func TestInvalidType(t *testing.T) {
	_, err := New("leveldb", t.TempDir())
	qt.Assert(t, err, qt.ErrorMatches, `invalid dbType: "leveldb".*`)
}
