// Package verifier checks Groth16 ballot proofs produced by snarkjs/circom
// tooling. The ledger depends only on the ProofVerifier interface; the
// implementations here are a native BN254 pairing check (Groth16), a wrapper
// of iden3 go-rapidsnark (Rapidsnark) and a canned stub for tests (Canned).
package verifier

import (
	"encoding/json"
	"fmt"
	"math"

	"go.vocdoni.io/zkballot/types"
)

// Positions of the public signals emitted by the ballot circuit.
const (
	NullifierHashIndex = 0
	CandidateIndex     = 1
	PubSignalsArity    = 2
)

var (
	ErrPublicSignalFormat = fmt.Errorf("invalid proof public signals format")
	ErrParsingProofSignal = fmt.Errorf("error parsing proof signal string to field element")
	ErrParseProofData     = fmt.Errorf("error parsing the proof provided, it must be a valid snarkjs json")
	ErrVerificationKey    = fmt.Errorf("invalid verification key")
)

// ProofVerifier verifies a zero-knowledge proof against its public signals.
// Implementations must be deterministic, must not mutate their inputs and
// must return false (never panic) for malformed proofs or signals.
type ProofVerifier interface {
	Verify(proof *Proof, pubSignals []string) bool
}

// Proof contains the group elements of a Groth16 proof in the snarkjs JSON
// layout. Points may be given in affine form (2 coordinates) or with the
// trailing projective coordinate snarkjs emits ("1", or ["1","0"] for G2).
type Proof struct {
	A        []string   `json:"pi_a" cbor:"1,keyasint"`
	B        [][]string `json:"pi_b" cbor:"2,keyasint"`
	C        []string   `json:"pi_c" cbor:"3,keyasint"`
	Protocol string     `json:"protocol,omitempty" cbor:"4,keyasint,omitempty"`
}

// ParseProof decodes a snarkjs proof.json.
func ParseProof(data []byte) (*Proof, error) {
	p := &Proof{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseProofData, err)
	}
	return p, nil
}

// ParsePubSignals decodes a snarkjs public.json (a JSON array of decimal strings).
func ParsePubSignals(data []byte) ([]string, error) {
	signals := []string{}
	if err := json.Unmarshal(data, &signals); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublicSignalFormat, err)
	}
	return signals, nil
}

// Clone returns a deep copy of the proof.
func (p *Proof) Clone() *Proof {
	c := &Proof{
		A:        append([]string{}, p.A...),
		C:        append([]string{}, p.C...),
		Protocol: p.Protocol,
	}
	for _, row := range p.B {
		c.B = append(c.B, append([]string{}, row...))
	}
	return c
}

// ParseSignal parses a public signal as a canonical field element. Only plain
// base 10 digits are accepted, so every field element has a single textual
// form up to leading zeros.
func ParseSignal(s string) (*types.BigInt, error) {
	if len(s) == 0 || len(s) > 80 {
		return nil, ErrParsingProofSignal
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return nil, ErrParsingProofSignal
		}
	}
	v, err := new(types.BigInt).SetString(s)
	if err != nil {
		return nil, ErrParsingProofSignal
	}
	if !v.IsFieldElement() {
		return nil, fmt.Errorf("%w: value out of field", ErrParsingProofSignal)
	}
	return v, nil
}

// ParseNullifierHash returns the nullifier hash revealed by the proof.
func ParseNullifierHash(pubSignals []string) (*types.BigInt, error) {
	if len(pubSignals) != PubSignalsArity {
		return nil, ErrPublicSignalFormat
	}
	n, err := ParseSignal(pubSignals[NullifierHashIndex])
	if err != nil {
		return nil, fmt.Errorf("%w: nullifier hash: %w", ErrPublicSignalFormat, err)
	}
	return n, nil
}

// ParseCandidateIndex returns the candidate index the proof votes for.
func ParseCandidateIndex(pubSignals []string) (uint32, error) {
	if len(pubSignals) != PubSignalsArity {
		return 0, ErrPublicSignalFormat
	}
	v, err := ParseSignal(pubSignals[CandidateIndex])
	if err != nil {
		return 0, fmt.Errorf("%w: candidate: %w", ErrPublicSignalFormat, err)
	}
	if !v.MathBigInt().IsUint64() || v.MathBigInt().Uint64() > math.MaxUint32 {
		return 0, fmt.Errorf("%w: candidate index %s out of range", ErrPublicSignalFormat, v)
	}
	return uint32(v.MathBigInt().Uint64()), nil
}
