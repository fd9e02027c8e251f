package transaction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/zkballot/crypto/ethereum"
	"go.vocdoni.io/zkballot/crypto/zk/verifier"
	"go.vocdoni.io/zkballot/phase"
	"go.vocdoni.io/zkballot/types"
)

// TxType identifies the payload of a transaction.
type TxType uint8

const (
	TxAddCandidate TxType = iota + 1
	TxSetVotingPeriod
	TxRegisterVoter
	TxCastVote
)

var txTypeNames = map[TxType]string{
	TxAddCandidate:    "addCandidate",
	TxSetVotingPeriod: "setVotingPeriod",
	TxRegisterVoter:   "registerVoter",
	TxCastVote:        "castVote",
}

// String implements fmt.Stringer.
func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t TxType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TxType) UnmarshalText(text []byte) error {
	for typ, name := range txTypeNames {
		if name == string(text) {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrTxType, text)
}

// Tx is the body of a transaction. Exactly one payload matching Type is set.
// Nonce is an optional client value which makes otherwise identical
// transactions distinct.
type Tx struct {
	Type            TxType             `json:"type" cbor:"1,keyasint"`
	Nonce           types.HexBytes     `json:"nonce,omitempty" cbor:"2,keyasint,omitempty"`
	AddCandidate    *AddCandidateTx    `json:"addCandidate,omitempty" cbor:"3,keyasint,omitempty"`
	SetVotingPeriod *SetVotingPeriodTx `json:"setVotingPeriod,omitempty" cbor:"4,keyasint,omitempty"`
	RegisterVoter   *RegisterVoterTx   `json:"registerVoter,omitempty" cbor:"5,keyasint,omitempty"`
	CastVote        *CastVoteTx        `json:"castVote,omitempty" cbor:"6,keyasint,omitempty"`
}

// AddCandidateTx appends a candidate. Admin only.
type AddCandidateTx struct {
	Name        string `json:"name" cbor:"1,keyasint"`
	Description string `json:"description,omitempty" cbor:"2,keyasint"`
}

// SetVotingPeriodTx sets the phase window, as unix timestamps. Admin only.
type SetVotingPeriodTx struct {
	RegistrationStart int64 `json:"registrationStart" cbor:"1,keyasint"`
	RegistrationEnd   int64 `json:"registrationEnd" cbor:"2,keyasint"`
	VotingStart       int64 `json:"votingStart" cbor:"3,keyasint"`
	VotingEnd         int64 `json:"votingEnd" cbor:"4,keyasint"`
}

// Window returns the payload as a phase window.
func (t *SetVotingPeriodTx) Window() phase.Window {
	return phase.NewWindow(t.RegistrationStart, t.RegistrationEnd, t.VotingStart, t.VotingEnd)
}

// NewSetVotingPeriodTx builds the payload from a window.
func NewSetVotingPeriodTx(w phase.Window) *SetVotingPeriodTx {
	return &SetVotingPeriodTx{
		RegistrationStart: w.RegistrationStart.Unix(),
		RegistrationEnd:   w.RegistrationEnd.Unix(),
		VotingStart:       w.VotingStart.Unix(),
		VotingEnd:         w.VotingEnd.Unix(),
	}
}

// RegisterVoterTx registers the signer's commitment, as a 32 byte big endian
// field element.
type RegisterVoterTx struct {
	Commitment types.HexBytes `json:"commitment" cbor:"1,keyasint"`
}

// CastVoteTx casts an anonymous vote. It does not need to be signed.
type CastVoteTx struct {
	Proof      *verifier.Proof `json:"proof" cbor:"1,keyasint"`
	PubSignals []string        `json:"pubSignals" cbor:"2,keyasint"`
}

// SignedTx is the envelope sent to the ledger. Signature is the signature of
// the Tx bytes as built by ethereum.BuildBallotTxMessage.
type SignedTx struct {
	Tx        types.HexBytes `json:"tx" cbor:"1,keyasint"`
	Signature types.HexBytes `json:"signature,omitempty" cbor:"2,keyasint,omitempty"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Marshal encodes the tx body.
func (tx *Tx) Marshal() ([]byte, error) {
	return encMode.Marshal(tx)
}

// Marshal encodes the envelope.
func (stx *SignedTx) Marshal() ([]byte, error) {
	return encMode.Marshal(stx)
}

// Sign encodes tx and signs it with key for the given election. A nil key
// produces an unsigned envelope, only valid for TxCastVote.
func Sign(tx *Tx, key *ethereum.SignKeys, electionID string) ([]byte, error) {
	body, err := tx.Marshal()
	if err != nil {
		return nil, err
	}
	stx := &SignedTx{Tx: body}
	if key != nil {
		if stx.Signature, err = key.SignBallotTx(body, electionID); err != nil {
			return nil, err
		}
	}
	return stx.Marshal()
}

// DecodedTx is a transaction decoded from its wire form.
type DecodedTx struct {
	Tx *Tx
	// Signer is the recovered signer address, nil for unsigned transactions.
	Signer *common.Address
	// Hash is the Keccak256 of the wire bytes.
	Hash types.HexBytes
}

// Decode decodes a SignedTx and recovers its signer.
func Decode(data []byte, electionID string) (*DecodedTx, error) {
	if len(data) == 0 {
		return nil, ErrNilTx
	}
	stx := &SignedTx{}
	if err := cbor.Unmarshal(data, stx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTx, err)
	}
	tx := &Tx{}
	if err := cbor.Unmarshal(stx.Tx, tx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTx, err)
	}
	if err := tx.checkPayload(); err != nil {
		return nil, err
	}
	dtx := &DecodedTx{Tx: tx, Hash: ethereum.HashRaw(data)}
	if len(stx.Signature) > 0 {
		addr, err := ethereum.AddrFromBallotTxSignature(stx.Tx, electionID, stx.Signature)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
		dtx.Signer = &addr
	}
	return dtx, nil
}

// checkPayload ensures exactly the payload matching Type is set.
func (tx *Tx) checkPayload() error {
	set := 0
	for _, p := range []bool{tx.AddCandidate != nil, tx.SetVotingPeriod != nil, tx.RegisterVoter != nil, tx.CastVote != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: expected one payload, got %d", ErrInvalidTx, set)
	}
	ok := false
	switch tx.Type {
	case TxAddCandidate:
		ok = tx.AddCandidate != nil
	case TxSetVotingPeriod:
		ok = tx.SetVotingPeriod != nil
	case TxRegisterVoter:
		ok = tx.RegisterVoter != nil
	case TxCastVote:
		ok = tx.CastVote != nil
	default:
		return fmt.Errorf("%w: %s", ErrTxType, tx.Type)
	}
	if !ok {
		return fmt.Errorf("%w: payload does not match type %s", ErrInvalidTx, tx.Type)
	}
	return nil
}
