package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/db/prefixeddb"
)

// Candidate is an entry of the ballot. Ids are assigned sequentially from 0.
type Candidate struct {
	ID          uint32 `json:"id" cbor:"1,keyasint"`
	Name        string `json:"name" cbor:"2,keyasint"`
	Description string `json:"description" cbor:"3,keyasint"`
	VoteCount   uint64 `json:"voteCount" cbor:"4,keyasint"`
}

func candidateKey(id uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, id)
	return key
}

// AddCandidate appends a candidate with zero votes and returns its id.
func (s *State) AddCandidate(name, description string) (uint32, error) {
	wtx := s.db.WriteTx()
	defer wtx.Discard()
	meta := prefixeddb.NewPrefixedWriteTx(wtx, metadataPrefix)
	next, err := counterInc(meta, candidateCountKey)
	if err != nil {
		return 0, err
	}
	if next > uint64(^uint32(0)) {
		return 0, fmt.Errorf("candidate list is full")
	}
	c := &Candidate{
		ID:          uint32(next),
		Name:        name,
		Description: description,
	}
	data, err := encode(c)
	if err != nil {
		return 0, err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wtx, candidatePrefix).Set(candidateKey(c.ID), data); err != nil {
		return 0, err
	}
	if err := wtx.Commit(); err != nil {
		return 0, err
	}
	s.forEachListener(func(l EventListener) { l.OnCandidate(c) })
	return c.ID, nil
}

// Candidate returns the candidate with the given id or ErrUnknownCandidate.
func (s *State) Candidate(id uint32) (*Candidate, error) {
	return getCandidate(prefixeddb.NewPrefixedDatabase(s.db, candidatePrefix), id)
}

func getCandidate(r db.Reader, id uint32) (*Candidate, error) {
	data, err := r.Get(candidateKey(id))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCandidate, id)
	}
	if err != nil {
		return nil, err
	}
	c := &Candidate{}
	if err := decode(data, c); err != nil {
		return nil, fmt.Errorf("cannot decode candidate %d: %w", id, err)
	}
	return c, nil
}

// Candidates returns all the candidates ordered by id.
func (s *State) Candidates() ([]*Candidate, error) {
	candidates := []*Candidate{}
	var decodeErr error
	err := prefixeddb.NewPrefixedDatabase(s.db, candidatePrefix).Iterate(nil, func(_, value []byte) bool {
		c := &Candidate{}
		if err := decode(value, c); err != nil {
			decodeErr = err
			return false
		}
		candidates = append(candidates, c)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("cannot decode candidate: %w", decodeErr)
	}
	return candidates, nil
}

// CandidateCount returns the number of candidates.
func (s *State) CandidateCount() (uint32, error) {
	n, err := counter(s.metadata(), candidateCountKey)
	return uint32(n), err
}

// incrementVote adds one vote to the candidate within tx. It is only called
// by ApplyVote.
func incrementVote(tx db.WriteTx, id uint32) (*Candidate, error) {
	candidates := prefixeddb.NewPrefixedWriteTx(tx, candidatePrefix)
	c, err := getCandidate(candidates, id)
	if err != nil {
		return nil, err
	}
	c.VoteCount++
	data, err := encode(c)
	if err != nil {
		return nil, err
	}
	return c, candidates.Set(candidateKey(id), data)
}
