package dbtest

import (
	"bytes"
	"errors"
	"strconv"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/zkballot/db"
)

// TestWriteTx checks the basic WriteTx lifecycle of a db.Database backend.
func TestWriteTx(t *testing.T, database db.Database) {
	wTx := database.WriteTx()

	if _, err := wTx.Get([]byte("a")); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatal(err)
	}

	err := wTx.Set([]byte("a"), []byte("b"))
	qt.Assert(t, err, qt.IsNil)

	v, err := wTx.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)

	if !bytes.Equal(v, []byte("b")) {
		t.Errorf("expected v (%v) to be equal to %v", v, []byte("b"))
	}

	// not visible outside the tx before commit
	_, err = database.Get([]byte("a"))
	qt.Assert(t, err, qt.ErrorIs, db.ErrKeyNotFound)

	err = wTx.Commit()
	qt.Assert(t, err, qt.IsNil)

	// Discard should not give any problem
	wTx.Discard()

	// a second commit is an error
	qt.Assert(t, wTx.Commit(), qt.ErrorIs, db.ErrTxClosed)

	// get value from a new tx after the previous commit
	wTx = database.WriteTx()
	v, err = wTx.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("b"))

	// ensure that WriteTx can be passed into a function that accepts
	// a Reader, and that can be used
	useReaderFromWriteTx(t, wTx)
	wTx.Discard()

	v, err = database.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("b"))
}

// TestDiscard checks that discarded writes never reach the database.
func TestDiscard(t *testing.T, database db.Database) {
	wTx := database.WriteTx()
	qt.Assert(t, wTx.Set([]byte("x"), []byte("1")), qt.IsNil)
	qt.Assert(t, wTx.Set([]byte("y"), []byte("2")), qt.IsNil)
	wTx.Discard()

	_, err := database.Get([]byte("x"))
	qt.Assert(t, err, qt.ErrorIs, db.ErrKeyNotFound)
	_, err = database.Get([]byte("y"))
	qt.Assert(t, err, qt.ErrorIs, db.ErrKeyNotFound)
}

func useReaderFromWriteTx(t *testing.T, r db.Reader) {
	v, err := r.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("b"))
}

// TestIterate checks prefix iteration over committed data.
func TestIterate(t *testing.T, d db.Database) {
	prefix0 := []byte("a")
	prefix0NumKeys := 20
	prefix1 := []byte("b")
	prefix1NumKeys := 30

	wTx := d.WriteTx()
	for i := 0; i < prefix0NumKeys; i++ {
		qt.Assert(t, wTx.Set(append(prefix0, []byte(strconv.Itoa(i))...), []byte(strconv.Itoa(i))), qt.IsNil)
	}
	for i := 0; i < prefix1NumKeys; i++ {
		qt.Assert(t, wTx.Set(append(prefix1, []byte(strconv.Itoa(i))...), []byte(strconv.Itoa(i))), qt.IsNil)
	}
	err := wTx.Commit()
	qt.Assert(t, err, qt.IsNil)

	noPrefixKeysFound := 0
	err = d.Iterate(nil, func(k, v []byte) bool {
		noPrefixKeysFound++
		return true
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, noPrefixKeysFound, qt.Equals, prefix0NumKeys+prefix1NumKeys)

	prefix0KeysFound := 0
	err = d.Iterate(prefix0, func(k, v []byte) bool {
		// keys are handed over without the prefix
		qt.Assert(t, k, qt.DeepEquals, v)
		prefix0KeysFound++
		return true
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, prefix0KeysFound, qt.Equals, prefix0NumKeys)

	prefix1KeysFound := 0
	err = d.Iterate(prefix1, func(k, v []byte) bool {
		prefix1KeysFound++
		return true
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, prefix1KeysFound, qt.Equals, prefix1NumKeys)

	// early stop
	stopped := 0
	err = d.Iterate(prefix1, func(k, v []byte) bool {
		stopped++
		return stopped < 5
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, stopped, qt.Equals, 5)
}
