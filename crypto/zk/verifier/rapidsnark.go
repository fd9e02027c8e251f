package verifier

import (
	"github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/go-rapidsnark/verifier"
	"go.vocdoni.io/zkballot/log"
)

// Rapidsnark verifies proofs with the iden3 go-rapidsnark verifier.
type Rapidsnark struct {
	vkey []byte
}

// NewRapidsnark returns a Rapidsnark verifier for the given snarkjs
// verification key. The key is validated by parsing it with the native
// verifier, so both backends accept the same keys.
func NewRapidsnark(vkey []byte) (*Rapidsnark, error) {
	if _, err := NewGroth16(vkey); err != nil {
		return nil, err
	}
	return &Rapidsnark{vkey: append([]byte{}, vkey...)}, nil
}

// Verify implements ProofVerifier.
func (r *Rapidsnark) Verify(proof *Proof, pubSignals []string) (valid bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warnw("recovered from panic while verifying proof", "panic", rec)
			valid = false
		}
	}()
	if proof == nil || len(pubSignals) != PubSignalsArity {
		return false
	}
	for _, s := range pubSignals {
		if _, err := ParseSignal(s); err != nil {
			return false
		}
	}
	p := proof.Clone()
	zkProof := types.ZKProof{
		Proof: &types.ProofData{
			A:        p.A,
			B:        p.B,
			C:        p.C,
			Protocol: "groth16",
		},
		PubSignals: append([]string{}, pubSignals...),
	}
	if err := verifier.VerifyGroth16(zkProof, r.vkey); err != nil {
		log.Debugw("proof rejected", "reason", err.Error())
		return false
	}
	return true
}
