package api

import (
	"time"

	"go.vocdoni.io/zkballot/phase"
	"go.vocdoni.io/zkballot/state"
	"go.vocdoni.io/zkballot/transaction"
	"go.vocdoni.io/zkballot/types"
)

// Info is the election summary returned by InfoEndpoint.
type Info struct {
	ElectionID    string        `json:"electionId"`
	Admin         string        `json:"admin"`
	Height        uint64        `json:"height"`
	MempoolSize   int           `json:"mempoolSize"`
	TotalVotes    uint64        `json:"totalVotes"`
	Registrations uint64        `json:"registrations"`
	Candidates    int           `json:"candidates"`
	Window        *phase.Window `json:"window,omitempty"`
}

// Candidates wraps the ordered candidate list.
type Candidates struct {
	Candidates []*state.Candidate `json:"candidates"`
}

// Phase holds the phase predicates evaluated at Time.
type Phase struct {
	Time               time.Time     `json:"time"`
	RegistrationActive bool          `json:"registrationActive"`
	VotingActive       bool          `json:"votingActive"`
	Window             *phase.Window `json:"window,omitempty"`
}

// Commitment is the commitment registered by Address.
type Commitment struct {
	Address    string        `json:"address"`
	Commitment *types.BigInt `json:"commitment"`
}

// Nullifier tells where a nullifier hash was consumed.
type Nullifier struct {
	NullifierHash *types.BigInt `json:"nullifierHash"`
	Height        uint64        `json:"height"`
	Time          time.Time     `json:"time"`
}

// TotalVotes is returned by TotalVotesEndpoint.
type TotalVotes struct {
	TotalVotes uint64 `json:"totalVotes"`
}

// Transaction is a delivered transaction, decoded.
type Transaction struct {
	Hash   types.HexBytes  `json:"hash"`
	Height uint64          `json:"height"`
	Index  int             `json:"index"`
	Signer string          `json:"signer,omitempty"`
	Tx     *transaction.Tx `json:"tx"`
	Raw    types.HexBytes  `json:"raw"`
}
