// Package witness derives the voter side values of the ballot circuit: the
// registration commitment, the nullifier and the circuit inputs. It does not
// generate proofs.
//
//	commitment    = poseidon(secret)
//	nullifier     = poseidon(secret, 1)
//	nullifierHash = poseidon(nullifier)
package witness

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"go.vocdoni.io/zkballot/crypto/ethereum"
	"go.vocdoni.io/zkballot/crypto/zk/verifier"
	"go.vocdoni.io/zkballot/types"
)

// nullifierDomain separates the nullifier from the commitment preimage.
var nullifierDomain = big.NewInt(1)

// CircuitInputs is the circuit input file consumed by the prover (snarkjs
// format).
type CircuitInputs struct {
	Secret        *types.BigInt `json:"secret"`
	Nullifier     *types.BigInt `json:"nullifier"`
	Vote          *types.BigInt `json:"vote"`
	Commitment    *types.BigInt `json:"commitment"`
	NullifierHash *types.BigInt `json:"nullifierHash"`
}

// NewSecret returns a random BN254 field element.
func NewSecret() (*types.BigInt, error) {
	s, err := rand.Int(rand.Reader, types.FieldModulus().MathBigInt())
	if err != nil {
		return nil, fmt.Errorf("cannot generate secret: %w", err)
	}
	return (*types.BigInt)(s), nil
}

// SecretFromSeed deterministically maps seed to a field element.
func SecretFromSeed(seed []byte) *types.BigInt {
	h := sha256.Sum256(seed)
	s := new(big.Int).SetBytes(h[:])
	return (*types.BigInt)(s.Mod(s, types.FieldModulus().MathBigInt()))
}

// SecretFromSignKeys derives the secret from an ethereum private key, so the
// same account always maps to the same commitment.
func SecretFromSignKeys(key *ethereum.SignKeys) *types.BigInt {
	return SecretFromSeed([]byte(key.PrivateKeyHex()))
}

// Commitment returns poseidon(secret).
func Commitment(secret *types.BigInt) (*types.BigInt, error) {
	return hash(secret)
}

// Nullifier returns poseidon(secret, 1).
func Nullifier(secret *types.BigInt) (*types.BigInt, error) {
	if secret == nil {
		return nil, fmt.Errorf("nil secret")
	}
	return hash(secret, (*types.BigInt)(nullifierDomain))
}

// NullifierHash returns poseidon(nullifier), the public signal that marks a
// secret as spent.
func NullifierHash(nullifier *types.BigInt) (*types.BigInt, error) {
	return hash(nullifier)
}

// NewCircuitInputs computes every circuit input for secret voting for
// candidate.
func NewCircuitInputs(secret *types.BigInt, candidate uint32) (*CircuitInputs, error) {
	commitment, err := Commitment(secret)
	if err != nil {
		return nil, err
	}
	nullifier, err := Nullifier(secret)
	if err != nil {
		return nil, err
	}
	nullifierHash, err := NullifierHash(nullifier)
	if err != nil {
		return nil, err
	}
	return &CircuitInputs{
		Secret:        secret,
		Nullifier:     nullifier,
		Vote:          new(types.BigInt).SetUint64(uint64(candidate)),
		Commitment:    commitment,
		NullifierHash: nullifierHash,
	}, nil
}

// Inputs returns the JSON circuit inputs for secret voting for candidate.
func Inputs(secret *types.BigInt, candidate uint32) ([]byte, error) {
	in, err := NewCircuitInputs(secret, candidate)
	if err != nil {
		return nil, err
	}
	return json.Marshal(in)
}

// PubSignals returns the public signals a proof over these inputs exposes,
// in the order the ledger expects them.
func (in *CircuitInputs) PubSignals() []string {
	signals := make([]string, verifier.PubSignalsArity)
	signals[verifier.NullifierHashIndex] = in.NullifierHash.String()
	signals[verifier.CandidateIndex] = in.Vote.String()
	return signals
}

func hash(xs ...*types.BigInt) (*types.BigInt, error) {
	in := make([]*big.Int, 0, len(xs))
	for _, x := range xs {
		if !x.IsFieldElement() {
			return nil, fmt.Errorf("input is not a field element")
		}
		in = append(in, x.MathBigInt())
	}
	h, err := poseidon.Hash(in)
	if err != nil {
		return nil, fmt.Errorf("poseidon: %w", err)
	}
	return (*types.BigInt)(h), nil
}
