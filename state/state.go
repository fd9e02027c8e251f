// Package state contains the persistent registries of the ballot ledger: the
// candidate list with its tallies, the commitment registry, the nullifier set
// and the phase window. All the data lives in a single key-value database
// under the following prefixes:
//   - 'c/' candidates, keyed by big endian id
//   - 'r/' commitments, keyed by voter address
//   - 'n/' consumed nullifiers, keyed by the 32 byte field element
//   - 'm/' metadata and counters
//
// Every mutating method commits its own write transaction, so each one is
// applied atomically. Callers must serialize mutations; reads can run
// concurrently.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/db/prefixeddb"
	"go.vocdoni.io/zkballot/phase"
	"go.vocdoni.io/zkballot/types"
)

var (
	candidatePrefix  = []byte("c/")
	commitmentPrefix = []byte("r/")
	nullifierPrefix  = []byte("n/")
	metadataPrefix   = []byte("m/")

	candidateCountKey    = []byte("candidateCount")
	voteCountKey         = []byte("voteCount")
	registrationCountKey = []byte("registrationCount")
	windowKey            = []byte("window")
	electionKey          = []byte("election")
)

const commitmentCacheSize = 100000

// State is the ballot ledger state.
type State struct {
	db              db.Database
	commitmentCache *lru.Cache[common.Address, *types.BigInt]

	listenersMu    sync.RWMutex
	eventListeners []EventListener
}

// New returns a State backed by database.
func New(database db.Database) (*State, error) {
	cache, err := lru.New[common.Address, *types.BigInt](commitmentCacheSize)
	if err != nil {
		return nil, err
	}
	return &State{
		db:              database,
		commitmentCache: cache,
	}, nil
}

// Close closes the underlying database.
func (s *State) Close() error {
	return s.db.Close()
}

// DB returns the underlying database. It is shared with the ledger blockstore.
func (s *State) DB() db.Database {
	return s.db
}

// Election holds the static parameters of the election served by this state.
type Election struct {
	ID    string `json:"id" cbor:"1,keyasint"`
	Admin []byte `json:"admin" cbor:"2,keyasint"`
}

// SetElection stores the election parameters. It can be called only once.
func (s *State) SetElection(e *Election) error {
	wtx := s.db.WriteTx()
	defer wtx.Discard()
	meta := prefixeddb.NewPrefixedWriteTx(wtx, metadataPrefix)
	if _, err := meta.Get(electionKey); err == nil {
		return ErrElectionExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}
	data, err := encode(e)
	if err != nil {
		return err
	}
	if err := meta.Set(electionKey, data); err != nil {
		return err
	}
	return wtx.Commit()
}

// Election returns the stored election parameters or ErrElectionNotFound.
func (s *State) Election() (*Election, error) {
	data, err := s.metadata().Get(electionKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrElectionNotFound
	}
	if err != nil {
		return nil, err
	}
	e := &Election{}
	if err := decode(data, e); err != nil {
		return nil, err
	}
	return e, nil
}

type windowRecord struct {
	RegistrationStart int64 `cbor:"1,keyasint"`
	RegistrationEnd   int64 `cbor:"2,keyasint"`
	VotingStart       int64 `cbor:"3,keyasint"`
	VotingEnd         int64 `cbor:"4,keyasint"`
}

// SetWindow persists the phase window. The window is validated.
func (s *State) SetWindow(w phase.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	data, err := encode(&windowRecord{
		RegistrationStart: w.RegistrationStart.Unix(),
		RegistrationEnd:   w.RegistrationEnd.Unix(),
		VotingStart:       w.VotingStart.Unix(),
		VotingEnd:         w.VotingEnd.Unix(),
	})
	if err != nil {
		return err
	}
	wtx := s.db.WriteTx()
	defer wtx.Discard()
	if err := prefixeddb.NewPrefixedWriteTx(wtx, metadataPrefix).Set(windowKey, data); err != nil {
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	s.forEachListener(func(l EventListener) { l.OnWindow(w) })
	return nil
}

// Window returns the persisted phase window, and false if none is set.
func (s *State) Window() (phase.Window, bool, error) {
	data, err := s.metadata().Get(windowKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return phase.Window{}, false, nil
	}
	if err != nil {
		return phase.Window{}, false, err
	}
	r := &windowRecord{}
	if err := decode(data, r); err != nil {
		return phase.Window{}, false, err
	}
	return phase.NewWindow(r.RegistrationStart, r.RegistrationEnd, r.VotingStart, r.VotingEnd), true, nil
}

func (s *State) metadata() db.Reader {
	return prefixeddb.NewPrefixedDatabase(s.db, metadataPrefix)
}

// counter reads a little endian uint64 counter from r. Missing counters are 0.
func counter(r db.Reader, key []byte) (uint64, error) {
	value, err := r.Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("corrupted counter %q", key)
	}
	return binary.LittleEndian.Uint64(value), nil
}

// counterInc increases by 1 the counter stored at key and returns the previous value.
func counterInc(tx db.WriteTx, key []byte) (uint64, error) {
	prev, err := counter(tx, key)
	if err != nil {
		return 0, err
	}
	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, prev+1)
	return prev, tx.Set(key, value)
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func encode(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func decode(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}
