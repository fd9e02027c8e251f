// Package verifiertest builds Groth16 verification keys together with their
// trapdoor, so tests can produce valid proofs for arbitrary public signals
// without running a circuit prover.
package verifiertest

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"go.vocdoni.io/zkballot/crypto/zk/verifier"
)

// Setup holds the trapdoor of a verification key with verifier.PubSignalsArity
// public inputs.
type Setup struct {
	alpha, beta, gamma, delta *big.Int
	k                         []*big.Int
	vkey                      []byte
}

// NewSetup generates a fresh key. It panics if the system randomness fails.
func NewSetup() *Setup {
	s := &Setup{
		alpha: randScalar(),
		beta:  randScalar(),
		gamma: randScalar(),
		delta: randScalar(),
	}
	for i := 0; i <= verifier.PubSignalsArity; i++ {
		s.k = append(s.k, randScalar())
	}
	ic := [][]string{}
	for _, k := range s.k {
		ic = append(ic, g1(k))
	}
	vk := verifier.VerificationKey{
		Protocol: "groth16",
		Curve:    "bn128",
		NPublic:  verifier.PubSignalsArity,
		Alpha1:   g1(s.alpha),
		Beta2:    g2(s.beta),
		Gamma2:   g2(s.gamma),
		Delta2:   g2(s.delta),
		IC:       ic,
	}
	data, err := json.Marshal(vk)
	if err != nil {
		panic(err)
	}
	s.vkey = data
	return s
}

// VerificationKey returns the snarkjs JSON verification key.
func (s *Setup) VerificationKey() []byte {
	return append([]byte{}, s.vkey...)
}

// Prove returns a proof that verifies against the key for the given signals.
func (s *Setup) Prove(pubSignals []string) (*verifier.Proof, error) {
	if len(pubSignals) != verifier.PubSignalsArity {
		return nil, verifier.ErrPublicSignalFormat
	}
	r := fr.Modulus()
	x := new(big.Int).Set(s.k[0])
	for i, sig := range pubSignals {
		v, ok := new(big.Int).SetString(sig, 10)
		if !ok {
			return nil, fmt.Errorf("invalid signal %q", sig)
		}
		x.Add(x, new(big.Int).Mul(v, s.k[i+1]))
	}
	x.Mod(x, r)

	deltaInv := new(big.Int).ModInverse(s.delta, r)
	for {
		a, b := randScalar(), randScalar()
		// c = (a*b - alpha*beta - x*gamma) / delta
		c := new(big.Int).Mul(a, b)
		c.Sub(c, new(big.Int).Mul(s.alpha, s.beta))
		c.Sub(c, new(big.Int).Mul(x, s.gamma))
		c.Mul(c, deltaInv)
		c.Mod(c, r)
		if c.Sign() == 0 {
			continue
		}
		return &verifier.Proof{
			A:        g1(a),
			B:        g2(b),
			C:        g1(c),
			Protocol: "groth16",
		}, nil
	}
}

// PubSignals formats the public signals of a ballot.
func PubSignals(nullifierHash *big.Int, candidate uint32) []string {
	return []string{nullifierHash.String(), fmt.Sprintf("%d", candidate)}
}

func randScalar() *big.Int {
	for {
		v, err := rand.Int(rand.Reader, fr.Modulus())
		if err != nil {
			panic(err)
		}
		if v.Sign() != 0 {
			return v
		}
	}
}

func g1(s *big.Int) []string {
	_, _, gen, _ := bn254.Generators()
	var p bn254.G1Affine
	p.ScalarMultiplication(&gen, s)
	return []string{
		p.X.BigInt(new(big.Int)).String(),
		p.Y.BigInt(new(big.Int)).String(),
		"1",
	}
}

func g2(s *big.Int) [][]string {
	_, _, _, gen := bn254.Generators()
	var p bn254.G2Affine
	p.ScalarMultiplication(&gen, s)
	return [][]string{
		{p.X.A0.BigInt(new(big.Int)).String(), p.X.A1.BigInt(new(big.Int)).String()},
		{p.Y.A0.BigInt(new(big.Int)).String(), p.Y.A1.BigInt(new(big.Int)).String()},
		{"1", "0"},
	}
}
