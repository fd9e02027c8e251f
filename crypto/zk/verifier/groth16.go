package verifier

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"go.vocdoni.io/zkballot/log"
)

// VerificationKey is the snarkjs verification_key.json layout for Groth16
// over BN254 (bn128 in snarkjs terms).
type VerificationKey struct {
	Protocol string       `json:"protocol"`
	Curve    string       `json:"curve"`
	NPublic  int          `json:"nPublic"`
	Alpha1   []string     `json:"vk_alpha_1"`
	Beta2    [][]string   `json:"vk_beta_2"`
	Gamma2   [][]string   `json:"vk_gamma_2"`
	Delta2   [][]string   `json:"vk_delta_2"`
	IC       [][]string   `json:"IC"`
	AlphaB12 [][][]string `json:"vk_alphabeta_12,omitempty"`
}

// Groth16 verifies proofs natively with the gnark-crypto BN254 pairing.
type Groth16 struct {
	alpha bn254.G1Affine
	beta  bn254.G2Affine
	gamma bn254.G2Affine
	delta bn254.G2Affine
	ic    []bn254.G1Affine
}

// NewGroth16 parses a snarkjs verification key. The key must expect exactly
// PubSignalsArity public inputs.
func NewGroth16(vkey []byte) (*Groth16, error) {
	vk := &VerificationKey{}
	if err := json.Unmarshal(vkey, vk); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerificationKey, err)
	}
	if vk.Protocol != "" && vk.Protocol != "groth16" {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrVerificationKey, vk.Protocol)
	}
	if len(vk.IC) != PubSignalsArity+1 {
		return nil, fmt.Errorf("%w: expected %d IC points, got %d", ErrVerificationKey, PubSignalsArity+1, len(vk.IC))
	}
	if vk.NPublic != 0 && vk.NPublic != PubSignalsArity {
		return nil, fmt.Errorf("%w: nPublic is %d", ErrVerificationKey, vk.NPublic)
	}
	g := &Groth16{}
	var err error
	if g.alpha, err = parseG1(vk.Alpha1, false); err != nil {
		return nil, fmt.Errorf("%w: alpha: %w", ErrVerificationKey, err)
	}
	if g.beta, err = parseG2(vk.Beta2, false); err != nil {
		return nil, fmt.Errorf("%w: beta: %w", ErrVerificationKey, err)
	}
	if g.gamma, err = parseG2(vk.Gamma2, false); err != nil {
		return nil, fmt.Errorf("%w: gamma: %w", ErrVerificationKey, err)
	}
	if g.delta, err = parseG2(vk.Delta2, false); err != nil {
		return nil, fmt.Errorf("%w: delta: %w", ErrVerificationKey, err)
	}
	for i, p := range vk.IC {
		point, err := parseG1(p, true)
		if err != nil {
			return nil, fmt.Errorf("%w: IC[%d]: %w", ErrVerificationKey, i, err)
		}
		g.ic = append(g.ic, point)
	}
	return g, nil
}

// Verify implements ProofVerifier.
func (g *Groth16) Verify(proof *Proof, pubSignals []string) (valid bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnw("recovered from panic while verifying proof", "panic", r)
			valid = false
		}
	}()
	if err := g.verify(proof, pubSignals); err != nil {
		log.Debugw("proof rejected", "reason", err.Error())
		return false
	}
	return true
}

func (g *Groth16) verify(proof *Proof, pubSignals []string) error {
	if proof == nil {
		return ErrParseProofData
	}
	if len(pubSignals) != len(g.ic)-1 {
		return ErrPublicSignalFormat
	}
	a, err := parseG1(proof.A, false)
	if err != nil {
		return fmt.Errorf("pi_a: %w", err)
	}
	b, err := parseG2(proof.B, false)
	if err != nil {
		return fmt.Errorf("pi_b: %w", err)
	}
	c, err := parseG1(proof.C, false)
	if err != nil {
		return fmt.Errorf("pi_c: %w", err)
	}

	// vk_x = IC[0] + sum(signal[i] * IC[i+1])
	var acc bn254.G1Jac
	acc.FromAffine(&g.ic[0])
	for i, s := range pubSignals {
		v, err := ParseSignal(s)
		if err != nil {
			return err
		}
		var term bn254.G1Affine
		term.ScalarMultiplication(&g.ic[i+1], v.MathBigInt())
		acc.AddMixed(&term)
	}
	var vkX bn254.G1Affine
	vkX.FromJacobian(&acc)

	var negA bn254.G1Affine
	negA.Neg(&a)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, g.alpha, vkX, c},
		[]bn254.G2Affine{b, g.beta, g.gamma, g.delta},
	)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pairing check failed")
	}
	return nil
}

// parseFp parses a canonical base field coordinate.
func parseFp(s string) (fp.Element, error) {
	var e fp.Element
	if len(s) == 0 {
		return e, fmt.Errorf("empty coordinate")
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return e, fmt.Errorf("invalid coordinate %q", s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return e, fmt.Errorf("invalid coordinate %q", s)
	}
	if v.Cmp(fp.Modulus()) >= 0 {
		return e, fmt.Errorf("coordinate out of field")
	}
	e.SetBigInt(v)
	return e, nil
}

// parseG1 reads [x, y] or [x, y, "1"]. Unless allowInfinity is set, the
// identity is rejected.
func parseG1(coords []string, allowInfinity bool) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	switch len(coords) {
	case 2:
	case 3:
		if coords[2] != "1" {
			return p, fmt.Errorf("unsupported projective coordinate %q", coords[2])
		}
	default:
		return p, fmt.Errorf("expected 2 or 3 coordinates, got %d", len(coords))
	}
	var err error
	if p.X, err = parseFp(coords[0]); err != nil {
		return p, err
	}
	if p.Y, err = parseFp(coords[1]); err != nil {
		return p, err
	}
	if p.IsInfinity() {
		if allowInfinity {
			return p, nil
		}
		return p, fmt.Errorf("point at infinity")
	}
	if !p.IsOnCurve() {
		return p, fmt.Errorf("point not on curve")
	}
	if !p.IsInSubGroup() {
		return p, fmt.Errorf("point not in subgroup")
	}
	return p, nil
}

// parseG2 reads [[x0, x1], [y0, y1]] or the same with a trailing ["1", "0"].
func parseG2(coords [][]string, allowInfinity bool) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	switch len(coords) {
	case 2:
	case 3:
		if len(coords[2]) != 2 || coords[2][0] != "1" || coords[2][1] != "0" {
			return p, fmt.Errorf("unsupported projective coordinate %v", coords[2])
		}
	default:
		return p, fmt.Errorf("expected 2 or 3 coordinate pairs, got %d", len(coords))
	}
	if len(coords[0]) != 2 || len(coords[1]) != 2 {
		return p, fmt.Errorf("malformed G2 coordinates")
	}
	var err error
	if p.X.A0, err = parseFp(coords[0][0]); err != nil {
		return p, err
	}
	if p.X.A1, err = parseFp(coords[0][1]); err != nil {
		return p, err
	}
	if p.Y.A0, err = parseFp(coords[1][0]); err != nil {
		return p, err
	}
	if p.Y.A1, err = parseFp(coords[1][1]); err != nil {
		return p, err
	}
	if p.IsInfinity() {
		if allowInfinity {
			return p, nil
		}
		return p, fmt.Errorf("point at infinity")
	}
	if !p.IsOnCurve() {
		return p, fmt.Errorf("point not on curve")
	}
	if !p.IsInSubGroup() {
		return p, fmt.Errorf("point not in subgroup")
	}
	return p, nil
}
