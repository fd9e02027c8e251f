// Package voting composes the ballot registries into the operations exposed
// by the ledger: candidate and phase setup by the admin, voter registration
// and anonymous vote casting.
package voting

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/zkballot/config"
	"go.vocdoni.io/zkballot/crypto/zk/verifier"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/phase"
	"go.vocdoni.io/zkballot/state"
	"go.vocdoni.io/zkballot/types"
	"go.vocdoni.io/zkballot/util"
)

const (
	MaxCandidateNameSize        = 256
	MaxCandidateDescriptionSize = 4096
)

// VoteReceipt is returned by a successful CastVote.
type VoteReceipt struct {
	NullifierHash *types.BigInt `json:"nullifierHash"`
	CandidateID   uint32        `json:"candidateId"`
	Height        uint64        `json:"height"`
	Time          time.Time     `json:"time"`
}

// Orchestrator runs the ballot operations over the state. Mutating methods
// are serialized by an internal mutex; read methods never block on it.
type Orchestrator struct {
	mu       sync.Mutex
	state    *state.State
	clock    *phase.Clock
	verifier verifier.ProofVerifier
	admin    common.Address
}

// New returns an Orchestrator over st. The phase window persisted in st, if
// any, is loaded. If st was initialized for a different admin, an error is
// returned.
func New(st *state.State, v verifier.ProofVerifier, admin common.Address) (*Orchestrator, error) {
	if v == nil {
		return nil, fmt.Errorf("proof verifier is required")
	}
	o := &Orchestrator{
		state:    st,
		clock:    phase.NewClock(),
		verifier: v,
		admin:    admin,
	}
	election, err := st.Election()
	switch {
	case err == nil:
		if !bytes.Equal(election.Admin, admin.Bytes()) {
			return nil, fmt.Errorf("state belongs to admin %s, not %s",
				common.BytesToAddress(election.Admin).Hex(), admin.Hex())
		}
	case !errors.Is(err, state.ErrElectionNotFound):
		return nil, err
	}
	w, ok, err := st.Window()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := o.clock.SetWindow(w); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// State returns the underlying state.
func (o *Orchestrator) State() *state.State {
	return o.state
}

// Admin returns the admin address.
func (o *Orchestrator) Admin() common.Address {
	return o.admin
}

// ApplyGenesis adds the genesis candidates and phase window as the admin and
// records the election. It does nothing if the election is already recorded.
// An interrupted run is resumed: stored candidates are not added again and a
// stored window is kept.
func (o *Orchestrator) ApplyGenesis(g *config.Genesis, now time.Time) error {
	if _, err := o.state.Election(); err == nil {
		log.Infow("genesis already applied, skipping")
		return nil
	} else if !errors.Is(err, state.ErrElectionNotFound) {
		return err
	}
	stored, err := o.state.CandidateCount()
	if err != nil {
		return err
	}
	if int(stored) > len(g.Candidates) {
		return fmt.Errorf("state holds %d candidates, genesis has %d", stored, len(g.Candidates))
	}
	for _, c := range g.Candidates[stored:] {
		id, err := o.AddCandidate(o.admin, c.Name, c.Description, now)
		if err != nil {
			return fmt.Errorf("genesis candidate %q: %w", c.Name, err)
		}
		log.Infow("genesis candidate added", "id", id, "name", c.Name)
	}
	if _, ok := o.clock.Window(); ok {
		log.Infow("genesis voting period already stored")
	} else if g.VotingPeriods != nil {
		w, err := g.VotingPeriods.Window()
		if err != nil {
			return err
		}
		if err := o.SetVotingPeriod(o.admin, w, now); err != nil {
			return fmt.Errorf("genesis voting period: %w", err)
		}
	}
	return o.state.SetElection(&state.Election{ID: g.ElectionID, Admin: o.admin.Bytes()})
}

// AddCandidate appends a candidate and returns its id. Only the admin can add
// candidates, and only before the voting phase starts.
func (o *Orchestrator) AddCandidate(caller common.Address, name, description string, now time.Time) (uint32, error) {
	if caller != o.admin {
		return 0, fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if !utf8.ValidString(name) || !utf8.ValidString(description) {
		return 0, fmt.Errorf("%w: invalid utf8", ErrInvalidCandidate)
	}
	name, description = util.SanitizeText(name), util.SanitizeText(description)
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidCandidate)
	}
	if len(name) > MaxCandidateNameSize || len(description) > MaxCandidateDescriptionSize {
		return 0, fmt.Errorf("%w: name or description too long", ErrInvalidCandidate)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if w, ok := o.clock.Window(); ok && w.VotingStarted(now) {
		return 0, fmt.Errorf("%w: voting already started", ErrPhase)
	}
	id, err := o.state.AddCandidate(name, description)
	if err != nil {
		return 0, fmt.Errorf("cannot add candidate: %w", err)
	}
	log.Infow("candidate added", "id", id, "name", name)
	return id, nil
}

// SetVotingPeriod sets the phase window. The window can be replaced until the
// registration phase of the current window starts.
func (o *Orchestrator) SetVotingPeriod(caller common.Address, w phase.Window, now time.Time) error {
	if caller != o.admin {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if err := w.Validate(); err != nil {
		return err
	}
	w = w.Truncate()
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.clock.Window(); ok && current.Started(now) {
		return fmt.Errorf("%w: registration already started", ErrPhase)
	}
	if err := o.state.SetWindow(w); err != nil {
		return fmt.Errorf("cannot store window: %w", err)
	}
	if err := o.clock.SetWindow(w); err != nil {
		return err
	}
	log.Infow("voting period set", "window", w.String())
	return nil
}

// RegisterVoter stores the commitment of caller during the registration phase.
func (o *Orchestrator) RegisterVoter(caller common.Address, commitment *types.BigInt, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.clock.RegistrationActive(now) {
		return fmt.Errorf("%w: registration is not active", ErrPhase)
	}
	if !commitment.IsFieldElement() {
		return fmt.Errorf("%w: not a field element", ErrMalformedCommitment)
	}
	if err := o.state.RegisterCommitment(caller, commitment); err != nil {
		if errors.Is(err, state.ErrAlreadyRegistered) {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, caller.Hex())
		}
		return fmt.Errorf("cannot register voter: %w", err)
	}
	return nil
}

// CastVote verifies the proof and, if valid, consumes its nullifier and adds
// one vote to the chosen candidate. height is recorded with the nullifier.
func (o *Orchestrator) CastVote(proof *verifier.Proof, pubSignals []string, now time.Time, height uint64) (*VoteReceipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.clock.VotingActive(now) {
		return nil, fmt.Errorf("%w: voting is not active", ErrPhase)
	}
	nullifierHash, candidateID, err := o.parseSignals(pubSignals)
	if err != nil {
		return nil, err
	}
	used, err := o.state.NullifierExists(nullifierHash)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, fmt.Errorf("%w: nullifier %s", ErrAlreadyVoted, nullifierHash)
	}
	if !o.verifier.Verify(proof, pubSignals) {
		return nil, ErrInvalidProof
	}
	if err := o.state.ApplyVote(nullifierHash, candidateID, height, now); err != nil {
		switch {
		case errors.Is(err, state.ErrNullifierUsed):
			return nil, fmt.Errorf("%w: nullifier %s", ErrAlreadyVoted, nullifierHash)
		case errors.Is(err, state.ErrUnknownCandidate):
			return nil, fmt.Errorf("%w: %d", ErrUnknownCandidate, candidateID)
		}
		return nil, fmt.Errorf("cannot apply vote: %w", err)
	}
	return &VoteReceipt{
		NullifierHash: nullifierHash,
		CandidateID:   candidateID,
		Height:        height,
		Time:          now.Truncate(time.Second).UTC(),
	}, nil
}

// CheckVote runs the stateless and cheap stateful checks of CastVote, without
// verifying the proof nor writing anything.
func (o *Orchestrator) CheckVote(pubSignals []string, now time.Time) error {
	if !o.clock.VotingActive(now) {
		return fmt.Errorf("%w: voting is not active", ErrPhase)
	}
	nullifierHash, _, err := o.parseSignals(pubSignals)
	if err != nil {
		return err
	}
	used, err := o.state.NullifierExists(nullifierHash)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: nullifier %s", ErrAlreadyVoted, nullifierHash)
	}
	return nil
}

func (o *Orchestrator) parseSignals(pubSignals []string) (*types.BigInt, uint32, error) {
	nullifierHash, err := verifier.ParseNullifierHash(pubSignals)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedSignals, err)
	}
	candidateID, err := verifier.ParseCandidateIndex(pubSignals)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedSignals, err)
	}
	count, err := o.state.CandidateCount()
	if err != nil {
		return nil, 0, err
	}
	if candidateID >= count {
		return nil, 0, fmt.Errorf("%w: candidate %d does not exist", ErrMalformedSignals, candidateID)
	}
	return nullifierHash, candidateID, nil
}

// Candidates returns the candidates with their tallies.
func (o *Orchestrator) Candidates() ([]*state.Candidate, error) {
	return o.state.Candidates()
}

// RegistrationActive reports whether voters can register at now.
func (o *Orchestrator) RegistrationActive(now time.Time) bool {
	return o.clock.RegistrationActive(now)
}

// VotingActive reports whether votes can be cast at now.
func (o *Orchestrator) VotingActive(now time.Time) bool {
	return o.clock.VotingActive(now)
}

// Window returns the phase window, if set.
func (o *Orchestrator) Window() (phase.Window, bool) {
	return o.clock.Window()
}

// VoterCommitment returns the commitment of voter, or state.ErrNotRegistered.
func (o *Orchestrator) VoterCommitment(voter common.Address) (*types.BigInt, error) {
	return o.state.Commitment(voter)
}

// TotalVotes returns the number of votes cast.
func (o *Orchestrator) TotalVotes() (uint64, error) {
	return o.state.TotalVotes()
}

// NullifierUsed reports whether the nullifier hash has been consumed.
func (o *Orchestrator) NullifierUsed(nullifierHash *types.BigInt) (bool, error) {
	return o.state.NullifierExists(nullifierHash)
}
