// Package transaction decodes ledger transactions, authenticates their
// signer and dispatches them to the voting orchestrator.
package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/state"
	"go.vocdoni.io/zkballot/types"
	"go.vocdoni.io/zkballot/voting"
)

var (
	// ErrNilTx is returned if the transaction is empty.
	ErrNilTx = fmt.Errorf("nil transaction")
	// ErrInvalidTx is returned if the transaction cannot be decoded.
	ErrInvalidTx = fmt.Errorf("invalid transaction")
	// ErrTxType is returned for unknown transaction types.
	ErrTxType = fmt.Errorf("unknown transaction type")
	// ErrInvalidSignature is returned if the signer cannot be recovered.
	ErrInvalidSignature = fmt.Errorf("invalid signature")
	// ErrUnsignedTx is returned if a transaction that requires a signer has none.
	ErrUnsignedTx = fmt.Errorf("transaction must be signed")
)

// TransactionResponse is the result of a delivered transaction.
type TransactionResponse struct {
	TxHash types.HexBytes  `json:"txHash"`
	Type   TxType          `json:"type"`
	Signer *common.Address `json:"signer,omitempty"`
	// CandidateID is set for TxAddCandidate.
	CandidateID *uint32 `json:"candidateId,omitempty"`
	// Vote is set for TxCastVote.
	Vote *voting.VoteReceipt `json:"vote,omitempty"`
}

// TransactionHandler holds the methods for checking and delivering transactions.
type TransactionHandler struct {
	orchestrator *voting.Orchestrator
	electionID   string
}

// NewTransactionHandler creates a new TransactionHandler. The election must be
// initialized in the orchestrator state, since its id is part of every signed
// transaction.
func NewTransactionHandler(o *voting.Orchestrator) (*TransactionHandler, error) {
	election, err := o.State().Election()
	if err != nil {
		return nil, err
	}
	return &TransactionHandler{
		orchestrator: o,
		electionID:   election.ID,
	}, nil
}

// ElectionID returns the id signed transactions must be bound to.
func (t *TransactionHandler) ElectionID() string {
	return t.electionID
}

// CheckTx decodes data and runs the checks that do not require verifying a
// proof, against the state at now. Nothing is written.
func (t *TransactionHandler) CheckTx(data []byte, now time.Time) (*DecodedTx, error) {
	dtx, err := Decode(data, t.electionID)
	if err != nil {
		return nil, err
	}
	if _, err := t.checkTx(dtx, now, 0, false); err != nil {
		return nil, err
	}
	return dtx, nil
}

// DeliverTx decodes data and applies it to the state, using blockTime as the
// current time.
func (t *TransactionHandler) DeliverTx(data []byte, height uint64, blockTime time.Time) (*TransactionResponse, error) {
	dtx, err := Decode(data, t.electionID)
	if err != nil {
		return nil, err
	}
	return t.checkTx(dtx, blockTime, height, true)
}

// checkTx validates the transaction and applies it if forCommit is true.
func (t *TransactionHandler) checkTx(dtx *DecodedTx, now time.Time, height uint64, forCommit bool) (*TransactionResponse, error) {
	tx := dtx.Tx
	response := &TransactionResponse{
		TxHash: dtx.Hash,
		Type:   tx.Type,
		Signer: dtx.Signer,
	}
	o := t.orchestrator
	if tx.Type != TxCastVote && dtx.Signer == nil {
		return nil, fmt.Errorf("%s: %w", tx.Type, ErrUnsignedTx)
	}

	switch tx.Type {
	case TxAddCandidate:
		if !forCommit {
			if *dtx.Signer != o.Admin() {
				return nil, fmt.Errorf("%w: %s", voting.ErrUnauthorized, dtx.Signer.Hex())
			}
			return response, nil
		}
		id, err := o.AddCandidate(*dtx.Signer, tx.AddCandidate.Name, tx.AddCandidate.Description, now)
		if err != nil {
			return nil, fmt.Errorf("addCandidate: %w", err)
		}
		response.CandidateID = &id

	case TxSetVotingPeriod:
		w := tx.SetVotingPeriod.Window()
		if !forCommit {
			if *dtx.Signer != o.Admin() {
				return nil, fmt.Errorf("%w: %s", voting.ErrUnauthorized, dtx.Signer.Hex())
			}
			if err := w.Validate(); err != nil {
				return nil, fmt.Errorf("setVotingPeriod: %w", err)
			}
			return response, nil
		}
		if err := o.SetVotingPeriod(*dtx.Signer, w, now); err != nil {
			return nil, fmt.Errorf("setVotingPeriod: %w", err)
		}

	case TxRegisterVoter:
		if len(tx.RegisterVoter.Commitment) != types.FieldElementSize {
			return nil, fmt.Errorf("registerVoter: %w: expected %d bytes",
				voting.ErrMalformedCommitment, types.FieldElementSize)
		}
		commitment := new(types.BigInt).SetBytes(tx.RegisterVoter.Commitment)
		if !forCommit {
			if !o.RegistrationActive(now) {
				return nil, fmt.Errorf("registerVoter: %w: registration is not active", voting.ErrPhase)
			}
			if !commitment.IsFieldElement() {
				return nil, fmt.Errorf("registerVoter: %w", voting.ErrMalformedCommitment)
			}
			if _, err := o.VoterCommitment(*dtx.Signer); err == nil {
				return nil, fmt.Errorf("registerVoter: %w", voting.ErrAlreadyRegistered)
			} else if !errors.Is(err, state.ErrNotRegistered) {
				return nil, err
			}
			return response, nil
		}
		if err := o.RegisterVoter(*dtx.Signer, commitment, now); err != nil {
			return nil, fmt.Errorf("registerVoter: %w", err)
		}

	case TxCastVote:
		if !forCommit {
			if err := o.CheckVote(tx.CastVote.PubSignals, now); err != nil {
				return nil, fmt.Errorf("castVote: %w", err)
			}
			return response, nil
		}
		receipt, err := o.CastVote(tx.CastVote.Proof, tx.CastVote.PubSignals, now, height)
		if err != nil {
			return nil, fmt.Errorf("castVote: %w", err)
		}
		response.Vote = receipt

	default:
		return nil, fmt.Errorf("%w: %s", ErrTxType, tx.Type)
	}
	log.Debugw("transaction delivered", "type", tx.Type.String(), "hash", dtx.Hash.String(), "height", height)
	return response, nil
}
