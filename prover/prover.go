// Package prover defines the proof capability the transaction compiler
// relies on and verifies Groth16 proofs locally before they are used.
package prover

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
)

var (
	// ErrProofGeneration wraps any failure of the prover itself.
	ErrProofGeneration = errors.New("proof generation failed")
	// ErrInvalidProof is returned when a proof does not pass local
	// verification. Such a proof is never submitted.
	ErrInvalidProof = errors.New("invalid proof")
)

// Prover turns circuit inputs into a proof and its public inputs.
type Prover interface {
	Prove(ctx context.Context, circuit string, inputs map[string]any) (*Proof, error)
}

// Verifier checks a proof against the public inputs it carries.
type Verifier interface {
	Verify(circuit string, proof *Proof) error
}

type Proof struct {
	A            bn254.G1Affine
	B            bn254.G2Affine
	C            bn254.G1Affine
	PublicInputs []*big.Int
}

// Bytes returns the proof as the verifier program reads it: A as x||y, B as
// x1||x0||y1||y0 and C as x||y, every coordinate 32 bytes big-endian.
func (p *Proof) Bytes() (a [64]byte, b [128]byte, c [64]byte) {
	ax, ay := p.A.X.Bytes(), p.A.Y.Bytes()
	copy(a[:32], ax[:])
	copy(a[32:], ay[:])

	bx0, bx1 := p.B.X.A0.Bytes(), p.B.X.A1.Bytes()
	by0, by1 := p.B.Y.A0.Bytes(), p.B.Y.A1.Bytes()
	copy(b[0:32], bx1[:])
	copy(b[32:64], bx0[:])
	copy(b[64:96], by1[:])
	copy(b[96:128], by0[:])

	cx, cy := p.C.X.Bytes(), p.C.Y.Bytes()
	copy(c[:32], cx[:])
	copy(c[32:], cy[:])
	return
}

// PublicInputBytes returns each public input as 32 bytes big-endian.
func (p *Proof) PublicInputBytes() [][32]byte {
	out := make([][32]byte, 0, len(p.PublicInputs))
	for _, in := range p.PublicInputs {
		var buf [32]byte
		in.FillBytes(buf[:])
		out = append(out, buf)
	}
	return out
}

type verifyingProver struct {
	prover   Prover
	verifier Verifier
}

// WithVerification returns a Prover that verifies every proof with v and
// never returns one that fails.
func WithVerification(p Prover, v Verifier) Prover {
	return &verifyingProver{prover: p, verifier: v}
}

func (p *verifyingProver) Prove(
	ctx context.Context, circuit string, inputs map[string]any,
) (*Proof, error) {
	proof, err := p.prover.Prove(ctx, circuit, inputs)
	if err != nil {
		if errors.Is(err, ErrProofGeneration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrProofGeneration, err)
	}
	if err := p.verifier.Verify(circuit, proof); err != nil {
		return nil, err
	}
	return proof, nil
}
