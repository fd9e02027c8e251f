package transaction

import (
	"math/big"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/zkballot/crypto/ethereum"
	"go.vocdoni.io/zkballot/crypto/zk/verifier"
	"go.vocdoni.io/zkballot/db/metadb"
	"go.vocdoni.io/zkballot/phase"
	"go.vocdoni.io/zkballot/state"
	"go.vocdoni.io/zkballot/types"
	"go.vocdoni.io/zkballot/voting"
)

const t0 = int64(1_700_000_000)

func at(offset int64) time.Time { return time.Unix(t0+offset, 0) }

type testEnv struct {
	handler  *TransactionHandler
	admin    *ethereum.SignKeys
	voter    *ethereum.SignKeys
	verifier *verifier.Canned
}

func newTestEnv(t *testing.T) *testEnv {
	c := qt.New(t)
	env := &testEnv{
		admin:    ethereum.NewSignKeys(),
		voter:    ethereum.NewSignKeys(),
		verifier: verifier.NewCanned(),
	}
	c.Assert(env.admin.Generate(), qt.IsNil)
	c.Assert(env.voter.Generate(), qt.IsNil)
	st, err := state.New(metadb.NewTest(t))
	c.Assert(err, qt.IsNil)
	c.Assert(st.SetElection(&state.Election{ID: "election", Admin: env.admin.Address().Bytes()}), qt.IsNil)
	o, err := voting.New(st, env.verifier, env.admin.Address())
	c.Assert(err, qt.IsNil)
	env.handler, err = NewTransactionHandler(o)
	c.Assert(err, qt.IsNil)
	return env
}

func (env *testEnv) sign(c *qt.C, tx *Tx, key *ethereum.SignKeys) []byte {
	data, err := Sign(tx, key, env.handler.ElectionID())
	c.Assert(err, qt.IsNil)
	return data
}

func TestDecode(t *testing.T) {
	c := qt.New(t)
	key := ethereum.NewSignKeys()
	c.Assert(key.Generate(), qt.IsNil)

	tx := &Tx{Type: TxAddCandidate, AddCandidate: &AddCandidateTx{Name: "Alice", Description: "d"}}
	data, err := Sign(tx, key, "e1")
	c.Assert(err, qt.IsNil)

	dtx, err := Decode(data, "e1")
	c.Assert(err, qt.IsNil)
	c.Assert(dtx.Tx, qt.DeepEquals, tx)
	c.Assert(*dtx.Signer, qt.Equals, key.Address())
	c.Assert(dtx.Hash, qt.DeepEquals, types.HexBytes(ethereum.HashRaw(data)))

	// a different election recovers a different signer
	dtx, err = Decode(data, "e2")
	c.Assert(err, qt.IsNil)
	c.Assert(*dtx.Signer, qt.Not(qt.Equals), key.Address())

	// encoding is deterministic
	data2, err := Sign(tx, key, "e1")
	c.Assert(err, qt.IsNil)
	dtx2, err := Decode(data2, "e1")
	c.Assert(err, qt.IsNil)
	c.Assert(dtx2.Tx, qt.DeepEquals, tx)

	unsigned, err := Sign(&Tx{Type: TxCastVote, CastVote: &CastVoteTx{Proof: &verifier.Proof{}, PubSignals: []string{"1", "0"}}}, nil, "e1")
	c.Assert(err, qt.IsNil)
	dtx, err = Decode(unsigned, "e1")
	c.Assert(err, qt.IsNil)
	c.Assert(dtx.Signer, qt.IsNil)

	_, err = Decode(nil, "e1")
	c.Assert(err, qt.ErrorIs, ErrNilTx)
	_, err = Decode([]byte{0xff, 0x00}, "e1")
	c.Assert(err, qt.ErrorIs, ErrInvalidTx)

	for _, bad := range []*Tx{
		{Type: TxAddCandidate},
		{Type: TxAddCandidate, RegisterVoter: &RegisterVoterTx{}},
		{Type: TxAddCandidate, AddCandidate: &AddCandidateTx{}, RegisterVoter: &RegisterVoterTx{}},
	} {
		data, err := Sign(bad, key, "e1")
		c.Assert(err, qt.IsNil)
		_, err = Decode(data, "e1")
		c.Assert(err, qt.ErrorIs, ErrInvalidTx)
	}
	data, err = Sign(&Tx{Type: 42, AddCandidate: &AddCandidateTx{}}, key, "e1")
	c.Assert(err, qt.IsNil)
	_, err = Decode(data, "e1")
	c.Assert(err, qt.ErrorIs, ErrTxType)

	stx := &SignedTx{Tx: []byte{0xa0}, Signature: []byte{1, 2, 3}}
	data, err = stx.Marshal()
	c.Assert(err, qt.IsNil)
	_, err = Decode(data, "e1")
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestTxTypeText(t *testing.T) {
	c := qt.New(t)
	text, err := TxCastVote.MarshalText()
	c.Assert(err, qt.IsNil)
	c.Assert(string(text), qt.Equals, "castVote")
	var typ TxType
	c.Assert(typ.UnmarshalText([]byte("registerVoter")), qt.IsNil)
	c.Assert(typ, qt.Equals, TxRegisterVoter)
	c.Assert(typ.UnmarshalText([]byte("nope")), qt.ErrorIs, ErrTxType)
	c.Assert(TxType(9).String(), qt.Equals, "unknown(9)")
}

func TestHandlerFlow(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	h := env.handler

	// admin transactions
	addAlice := env.sign(c, &Tx{Type: TxAddCandidate, AddCandidate: &AddCandidateTx{Name: "Alice", Description: "d"}}, env.admin)
	_, err := h.CheckTx(addAlice, at(-10))
	c.Assert(err, qt.IsNil)
	resp, err := h.DeliverTx(addAlice, 1, at(-10))
	c.Assert(err, qt.IsNil)
	c.Assert(*resp.CandidateID, qt.Equals, uint32(0))
	c.Assert(*resp.Signer, qt.Equals, env.admin.Address())

	byVoter := env.sign(c, &Tx{Type: TxAddCandidate, AddCandidate: &AddCandidateTx{Name: "Mallory"}}, env.voter)
	_, err = h.CheckTx(byVoter, at(-10))
	c.Assert(err, qt.ErrorIs, voting.ErrUnauthorized)
	_, err = h.DeliverTx(byVoter, 1, at(-10))
	c.Assert(err, qt.ErrorIs, voting.ErrUnauthorized)

	unsignedAdmin, err := Sign(&Tx{Type: TxAddCandidate, AddCandidate: &AddCandidateTx{Name: "Eve"}}, nil, h.ElectionID())
	c.Assert(err, qt.IsNil)
	_, err = h.CheckTx(unsignedAdmin, at(-10))
	c.Assert(err, qt.ErrorIs, ErrUnsignedTx)

	w := phase.NewWindow(t0, t0+300, t0+301, t0+900)
	badWindow := env.sign(c, &Tx{Type: TxSetVotingPeriod, SetVotingPeriod: NewSetVotingPeriodTx(phase.NewWindow(t0, t0+300, t0+200, t0+900))}, env.admin)
	_, err = h.CheckTx(badWindow, at(-10))
	c.Assert(err, qt.ErrorIs, voting.ErrInvalidWindow)

	setPeriod := env.sign(c, &Tx{Type: TxSetVotingPeriod, SetVotingPeriod: NewSetVotingPeriodTx(w)}, env.admin)
	_, err = h.CheckTx(setPeriod, at(-10))
	c.Assert(err, qt.IsNil)
	_, err = h.DeliverTx(setPeriod, 2, at(-10))
	c.Assert(err, qt.IsNil)

	// registration
	register := env.sign(c, &Tx{Type: TxRegisterVoter, RegisterVoter: &RegisterVoterTx{Commitment: types.NewInt(1234).FieldBytes()}}, env.voter)
	_, err = h.CheckTx(register, at(-1))
	c.Assert(err, qt.ErrorIs, voting.ErrPhase)
	_, err = h.CheckTx(register, at(1))
	c.Assert(err, qt.IsNil)
	_, err = h.DeliverTx(register, 3, at(1))
	c.Assert(err, qt.IsNil)
	_, err = h.CheckTx(register, at(2))
	c.Assert(err, qt.ErrorIs, voting.ErrAlreadyRegistered)
	_, err = h.DeliverTx(register, 4, at(2))
	c.Assert(err, qt.ErrorIs, voting.ErrAlreadyRegistered)

	shortCommitment := env.sign(c, &Tx{Type: TxRegisterVoter, RegisterVoter: &RegisterVoterTx{Commitment: []byte{1}}}, env.admin)
	_, err = h.CheckTx(shortCommitment, at(1))
	c.Assert(err, qt.ErrorIs, voting.ErrMalformedCommitment)
	outOfField := env.sign(c, &Tx{Type: TxRegisterVoter, RegisterVoter: &RegisterVoterTx{Commitment: types.FieldModulus().FieldBytes()}}, env.admin)
	_, err = h.CheckTx(outOfField, at(1))
	c.Assert(err, qt.ErrorIs, voting.ErrMalformedCommitment)

	// voting
	proof := &verifier.Proof{A: []string{"1", "2"}, B: [][]string{{"3", "4"}, {"5", "6"}}, C: []string{"7", "8"}}
	signals := []string{big.NewInt(777).String(), "0"}
	env.verifier.Accept(proof, signals)
	vote, err := Sign(&Tx{Type: TxCastVote, CastVote: &CastVoteTx{Proof: proof, PubSignals: signals}}, nil, h.ElectionID())
	c.Assert(err, qt.IsNil)

	_, err = h.CheckTx(vote, at(100))
	c.Assert(err, qt.ErrorIs, voting.ErrPhase)
	_, err = h.CheckTx(vote, at(400))
	c.Assert(err, qt.IsNil)
	resp, err = h.DeliverTx(vote, 5, at(400))
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Signer, qt.IsNil)
	c.Assert(resp.Vote.NullifierHash.String(), qt.Equals, "777")
	c.Assert(resp.Vote.Height, qt.Equals, uint64(5))

	_, err = h.CheckTx(vote, at(401))
	c.Assert(err, qt.ErrorIs, voting.ErrAlreadyVoted)
	_, err = h.DeliverTx(vote, 6, at(401))
	c.Assert(err, qt.ErrorIs, voting.ErrAlreadyVoted)

	// a missing proof is a phase error outside the voting window
	noProof, err := Sign(&Tx{Type: TxCastVote, CastVote: &CastVoteTx{PubSignals: []string{"778", "0"}}}, nil, h.ElectionID())
	c.Assert(err, qt.IsNil)
	_, err = h.CheckTx(noProof, at(10))
	c.Assert(err, qt.ErrorIs, voting.ErrPhase)
	_, err = h.DeliverTx(noProof, 6, at(10))
	c.Assert(err, qt.ErrorIs, voting.ErrPhase)
	_, err = h.DeliverTx(noProof, 6, at(901))
	c.Assert(err, qt.ErrorIs, voting.ErrPhase)
	_, err = h.DeliverTx(noProof, 6, at(400))
	c.Assert(err, qt.ErrorIs, voting.ErrInvalidProof)

	forged, err := Sign(&Tx{Type: TxCastVote, CastVote: &CastVoteTx{Proof: proof, PubSignals: []string{"778", "0"}}}, nil, h.ElectionID())
	c.Assert(err, qt.IsNil)
	_, err = h.CheckTx(forged, at(400))
	c.Assert(err, qt.IsNil)
	_, err = h.DeliverTx(forged, 6, at(400))
	c.Assert(err, qt.ErrorIs, voting.ErrInvalidProof)
}

func TestHandlerRequiresElection(t *testing.T) {
	c := qt.New(t)
	st, err := state.New(metadb.NewTest(t))
	c.Assert(err, qt.IsNil)
	o, err := voting.New(st, verifier.NewCanned(), ethereum.NewSignKeys().Address())
	c.Assert(err, qt.IsNil)
	_, err = NewTransactionHandler(o)
	c.Assert(err, qt.ErrorIs, state.ErrElectionNotFound)
}
