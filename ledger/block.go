package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/types"
)

var (
	txPrefix     = []byte("t/")
	headerPrefix = []byte("b/")
	hashPrefix   = []byte("x/")
	heightKey    = []byte("m/height")
)

// BlockHeader is stored for every produced block.
type BlockHeader struct {
	Height   uint64           `json:"height" cbor:"1,keyasint"`
	Time     time.Time        `json:"time" cbor:"2,keyasint"`
	TxCount  int              `json:"txCount" cbor:"3,keyasint"`
	TxHashes []types.HexBytes `json:"txHashes" cbor:"4,keyasint,omitempty"`
}

// TxRef locates a delivered transaction.
type TxRef struct {
	Height uint64 `json:"height" cbor:"1,keyasint"`
	Index  int    `json:"index" cbor:"2,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func txKey(height uint64, index int) []byte {
	return append(append([]byte{}, txPrefix...), fmt.Sprintf("%d_%d", height, index)...)
}

func headerKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, headerPrefix...), height)
}

func hashKey(hash []byte) []byte {
	return append(append([]byte{}, hashPrefix...), hash...)
}

func storedHeight(r db.Reader) (uint64, error) {
	v, err := r.Get(heightKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupted height record")
	}
	return binary.BigEndian.Uint64(v), nil
}
