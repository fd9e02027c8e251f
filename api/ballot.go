package api

import (
	"errors"
	"net/http"

	"go.vocdoni.io/zkballot/state"
)

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	st := a.orchestrator.State()
	election, err := st.Election()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	info := &Info{
		ElectionID:  election.ID,
		Admin:       a.orchestrator.Admin().Hex(),
		Height:      a.ledger.Height(),
		MempoolSize: a.ledger.MempoolSize(),
	}
	if info.TotalVotes, err = st.TotalVotes(); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if info.Registrations, err = st.CountRegistrations(); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	count, err := st.CandidateCount()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	info.Candidates = int(count)
	if window, ok := a.orchestrator.Window(); ok {
		info.Window = &window
	}
	httpWriteJSON(w, info)
}

func (a *API) candidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := a.orchestrator.Candidates()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if candidates == nil {
		candidates = []*state.Candidate{}
	}
	httpWriteJSON(w, &Candidates{Candidates: candidates})
}

func (a *API) phase(w http.ResponseWriter, r *http.Request) {
	now := a.ledger.Now()
	resp := &Phase{
		Time:               now.UTC(),
		RegistrationActive: a.orchestrator.RegistrationActive(now),
		VotingActive:       a.orchestrator.VotingActive(now),
	}
	if window, ok := a.orchestrator.Window(); ok {
		resp.Window = &window
	}
	httpWriteJSON(w, resp)
}

func (a *API) commitment(w http.ResponseWriter, r *http.Request) {
	voter, ok := urlVoter(w, r)
	if !ok {
		return
	}
	commitment, err := a.orchestrator.VoterCommitment(voter)
	if errors.Is(err, state.ErrNotRegistered) {
		ErrVoterNotRegistered.With(voter.Hex()).Write(w)
		return
	}
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &Commitment{Address: voter.Hex(), Commitment: commitment})
}

func (a *API) nullifier(w http.ResponseWriter, r *http.Request) {
	nullifierHash, ok := urlNullifierHash(w, r)
	if !ok {
		return
	}
	info, err := a.orchestrator.State().Nullifier(nullifierHash)
	if errors.Is(err, state.ErrNullifierNotFound) {
		ErrNullifierNotFound.With(nullifierHash.String()).Write(w)
		return
	}
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &Nullifier{
		NullifierHash: nullifierHash,
		Height:        info.Height,
		Time:          info.Time,
	})
}

func (a *API) totalVotes(w http.ResponseWriter, r *http.Request) {
	total, err := a.orchestrator.TotalVotes()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &TotalVotes{TotalVotes: total})
}
