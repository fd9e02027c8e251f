package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/db/prefixeddb"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/types"
)

// RegisterCommitment stores the eligibility commitment of voter. Each voter
// can register only once.
func (s *State) RegisterCommitment(voter common.Address, commitment *types.BigInt) error {
	if !commitment.IsFieldElement() {
		return ErrInvalidValue
	}
	wtx := s.db.WriteTx()
	defer wtx.Discard()
	commitments := prefixeddb.NewPrefixedWriteTx(wtx, commitmentPrefix)
	if _, err := commitments.Get(voter.Bytes()); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, voter.Hex())
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}
	if err := commitments.Set(voter.Bytes(), commitment.FieldBytes()); err != nil {
		return err
	}
	if _, err := counterInc(prefixeddb.NewPrefixedWriteTx(wtx, metadataPrefix), registrationCountKey); err != nil {
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	log.Debugw("commitment registered", "voter", voter.Hex(), "commitment", commitment.String())
	s.forEachListener(func(l EventListener) { l.OnRegister(voter) })
	return nil
}

// Commitment returns the commitment registered by voter, or ErrNotRegistered.
// A zero commitment is a valid stored value.
func (s *State) Commitment(voter common.Address) (*types.BigInt, error) {
	if c, ok := s.commitmentCache.Get(voter); ok {
		return new(types.BigInt).SetBytes(c.Bytes()), nil
	}
	data, err := prefixeddb.NewPrefixedDatabase(s.db, commitmentPrefix).Get(voter.Bytes())
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, err
	}
	c := new(types.BigInt).SetBytes(data)
	s.commitmentCache.Add(voter, c)
	return new(types.BigInt).SetBytes(c.Bytes()), nil
}

// CountRegistrations returns the number of registered voters.
func (s *State) CountRegistrations() (uint64, error) {
	return counter(s.metadata(), registrationCountKey)
}
