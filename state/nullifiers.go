package state

import (
	"errors"
	"fmt"
	"time"

	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/db/prefixeddb"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/types"
)

// NullifierInfo records when a nullifier was consumed.
type NullifierInfo struct {
	Height uint64    `json:"height"`
	Time   time.Time `json:"time"`
}

type nullifierRecord struct {
	Height uint64 `cbor:"1,keyasint"`
	Time   int64  `cbor:"2,keyasint"`
}

// NullifierExists reports whether the nullifier hash has been consumed.
func (s *State) NullifierExists(nullifierHash *types.BigInt) (bool, error) {
	_, err := s.Nullifier(nullifierHash)
	if errors.Is(err, ErrNullifierNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Nullifier returns the consumption info of the nullifier hash, or
// ErrNullifierNotFound.
func (s *State) Nullifier(nullifierHash *types.BigInt) (*NullifierInfo, error) {
	if !nullifierHash.IsFieldElement() {
		return nil, ErrInvalidValue
	}
	data, err := prefixeddb.NewPrefixedDatabase(s.db, nullifierPrefix).Get(nullifierHash.FieldBytes())
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrNullifierNotFound
	}
	if err != nil {
		return nil, err
	}
	r := &nullifierRecord{}
	if err := decode(data, r); err != nil {
		return nil, err
	}
	return &NullifierInfo{Height: r.Height, Time: time.Unix(r.Time, 0).UTC()}, nil
}

// ApplyVote consumes the nullifier hash and adds one vote to the candidate,
// all in a single write transaction. If the nullifier is already consumed
// or the candidate does not exist, nothing is written.
func (s *State) ApplyVote(nullifierHash *types.BigInt, candidateID uint32, height uint64, blockTime time.Time) error {
	if !nullifierHash.IsFieldElement() {
		return ErrInvalidValue
	}
	wtx := s.db.WriteTx()
	defer wtx.Discard()

	nullifiers := prefixeddb.NewPrefixedWriteTx(wtx, nullifierPrefix)
	key := nullifierHash.FieldBytes()
	if _, err := nullifiers.Get(key); err == nil {
		return fmt.Errorf("%w: %s", ErrNullifierUsed, nullifierHash)
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}
	candidate, err := incrementVote(wtx, candidateID)
	if err != nil {
		return err
	}
	data, err := encode(&nullifierRecord{Height: height, Time: blockTime.Unix()})
	if err != nil {
		return err
	}
	if err := nullifiers.Set(key, data); err != nil {
		return err
	}
	if _, err := counterInc(prefixeddb.NewPrefixedWriteTx(wtx, metadataPrefix), voteCountKey); err != nil {
		return err
	}
	if err := wtx.Commit(); err != nil {
		return fmt.Errorf("cannot commit vote: %w", err)
	}
	log.Debugw("vote applied",
		"nullifierHash", nullifierHash.String(),
		"candidate", candidateID,
		"candidateVotes", candidate.VoteCount,
		"height", height)
	s.forEachListener(func(l EventListener) { l.OnVote(nullifierHash, candidateID, height) })
	return nil
}

// TotalVotes returns the number of consumed nullifiers.
func (s *State) TotalVotes() (uint64, error) {
	return counter(s.metadata(), voteCountKey)
}
