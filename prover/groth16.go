package prover

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/shieldpool/go-sdk/field"
)

// VerifyingKey is a Groth16 verifying key over BN254.
type VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	// IC has one point per public input plus the constant term.
	IC []bn254.G1Affine
}

// Groth16Verifier verifies proofs of the circuits it knows a key for.
type Groth16Verifier struct {
	keys map[string]*VerifyingKey
}

func NewGroth16Verifier(keys map[string]*VerifyingKey) *Groth16Verifier {
	cp := make(map[string]*VerifyingKey, len(keys))
	for k, v := range keys {
		cp[k] = v
	}
	return &Groth16Verifier{keys: cp}
}

func (v *Groth16Verifier) Verify(circuit string, proof *Proof) error {
	vk, ok := v.keys[circuit]
	if !ok {
		return fmt.Errorf("%w: no verifying key for circuit %q", ErrInvalidProof, circuit)
	}
	return vk.Verify(proof)
}

// Verify checks e(A, B) == e(alpha, beta) * e(vk_x, gamma) * e(C, delta).
func (vk *VerifyingKey) Verify(proof *Proof) error {
	if proof == nil {
		return fmt.Errorf("%w: missing proof", ErrInvalidProof)
	}
	if len(proof.PublicInputs)+1 != len(vk.IC) {
		return fmt.Errorf(
			"%w: got %d public inputs, key expects %d",
			ErrInvalidProof, len(proof.PublicInputs), len(vk.IC)-1,
		)
	}
	if !proof.A.IsOnCurve() || !proof.B.IsOnCurve() || !proof.C.IsOnCurve() {
		return fmt.Errorf("%w: point not on curve", ErrInvalidProof)
	}

	var acc bn254.G1Jac
	acc.FromAffine(&vk.IC[0])
	for i, in := range proof.PublicInputs {
		if in.Sign() < 0 || in.Cmp(field.FieldSize) >= 0 {
			return fmt.Errorf("%w: public input %d out of field", ErrInvalidProof, i)
		}
		var term bn254.G1Jac
		term.FromAffine(&vk.IC[i+1])
		term.ScalarMultiplication(&term, in)
		acc.AddAssign(&term)
	}
	var vkX bn254.G1Affine
	vkX.FromJacobian(&acc)

	var negA bn254.G1Affine
	negA.Neg(&proof.A)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, vk.Alpha, vkX, proof.C},
		[]bn254.G2Affine{proof.B, vk.Beta, vk.Gamma, vk.Delta},
	)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	if !ok {
		return fmt.Errorf("%w: pairing check failed", ErrInvalidProof)
	}
	return nil
}

// snarkjsKey is the verification_key.json layout produced by snarkjs.
type snarkjsKey struct {
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
	NPublic  int        `json:"nPublic"`
	Alpha    []string   `json:"vk_alpha_1"`
	Beta     [][]string `json:"vk_beta_2"`
	Gamma    [][]string `json:"vk_gamma_2"`
	Delta    [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

// ParseVerifyingKey reads a snarkjs Groth16 verification key.
func ParseVerifyingKey(data []byte) (*VerifyingKey, error) {
	var raw snarkjsKey
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse verifying key: %w", err)
	}
	if raw.Protocol != "" && raw.Protocol != "groth16" {
		return nil, fmt.Errorf("unsupported protocol %q", raw.Protocol)
	}
	if raw.NPublic > 0 && raw.NPublic+1 != len(raw.IC) {
		return nil, fmt.Errorf("verifying key has %d IC points for %d public inputs", len(raw.IC), raw.NPublic)
	}

	vk := &VerifyingKey{}
	var err error
	if vk.Alpha, err = ParseG1(raw.Alpha); err != nil {
		return nil, fmt.Errorf("vk_alpha_1: %w", err)
	}
	if vk.Beta, err = ParseG2(raw.Beta); err != nil {
		return nil, fmt.Errorf("vk_beta_2: %w", err)
	}
	if vk.Gamma, err = ParseG2(raw.Gamma); err != nil {
		return nil, fmt.Errorf("vk_gamma_2: %w", err)
	}
	if vk.Delta, err = ParseG2(raw.Delta); err != nil {
		return nil, fmt.Errorf("vk_delta_2: %w", err)
	}
	for i, p := range raw.IC {
		point, err := ParseG1(p)
		if err != nil {
			return nil, fmt.Errorf("IC[%d]: %w", i, err)
		}
		vk.IC = append(vk.IC, point)
	}
	return vk, nil
}

// ParseG1 reads a snarkjs [x, y, z] G1 point in affine form (z = 1).
func ParseG1(coords []string) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if len(coords) < 2 {
		return p, fmt.Errorf("expected at least 2 coordinates, got %d", len(coords))
	}
	x, err := field.FromString(coords[0])
	if err != nil {
		return p, err
	}
	y, err := field.FromString(coords[1])
	if err != nil {
		return p, err
	}
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	if !p.IsOnCurve() {
		return p, fmt.Errorf("g1 point not on curve")
	}
	return p, nil
}

// ParseG2 reads a snarkjs [[x0, x1], [y0, y1], [1, 0]] G2 point.
func ParseG2(coords [][]string) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	if len(coords) < 2 || len(coords[0]) != 2 || len(coords[1]) != 2 {
		return p, fmt.Errorf("malformed g2 point")
	}
	values := make([]*big.Int, 0, 4)
	for _, c := range [][]string{coords[0], coords[1]} {
		for _, s := range c {
			v, err := field.FromString(s)
			if err != nil {
				return p, err
			}
			values = append(values, v)
		}
	}
	p.X.A0.SetBigInt(values[0])
	p.X.A1.SetBigInt(values[1])
	p.Y.A0.SetBigInt(values[2])
	p.Y.A1.SetBigInt(values[3])
	if !p.IsOnCurve() {
		return p, fmt.Errorf("g2 point not on curve")
	}
	return p, nil
}
