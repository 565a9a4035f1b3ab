package prover_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/prover"
	"github.com/stretchr/testify/require"
)

// fixture builds a verifying key from known discrete logs so that a valid
// proof can be computed without a circuit.
type fixture struct {
	vk           *prover.VerifyingKey
	alpha, beta  *big.Int
	gamma, delta *big.Int
	ic           []*big.Int
	g1           bn254.G1Affine
	g2           bn254.G2Affine
}

func newFixture(nPublic int) *fixture {
	_, _, g1, g2 := bn254.Generators()
	f := &fixture{
		alpha: big.NewInt(11), beta: big.NewInt(13),
		gamma: big.NewInt(17), delta: big.NewInt(19),
		g1: g1, g2: g2,
	}
	f.vk = &prover.VerifyingKey{
		Alpha: mulG1(g1, f.alpha),
		Beta:  mulG2(g2, f.beta),
		Gamma: mulG2(g2, f.gamma),
		Delta: mulG2(g2, f.delta),
	}
	for i := 0; i <= nPublic; i++ {
		k := big.NewInt(int64(23 + i))
		f.ic = append(f.ic, k)
		f.vk.IC = append(f.vk.IC, mulG1(g1, k))
	}
	return f
}

func (f *fixture) prove(publicInputs ...*big.Int) *prover.Proof {
	r := field.FieldSize
	a, b := big.NewInt(29), big.NewInt(31)

	x := new(big.Int).Set(f.ic[0])
	for i, in := range publicInputs {
		x.Add(x, new(big.Int).Mul(f.ic[i+1], in))
	}
	// c = (a*b - alpha*beta - x*gamma) / delta
	c := new(big.Int).Mul(a, b)
	c.Sub(c, new(big.Int).Mul(f.alpha, f.beta))
	c.Sub(c, new(big.Int).Mul(x, f.gamma))
	c.Mod(c, r)
	c.Mul(c, new(big.Int).ModInverse(f.delta, r))
	c.Mod(c, r)

	return &prover.Proof{
		A:            mulG1(f.g1, a),
		B:            mulG2(f.g2, b),
		C:            mulG1(f.g1, c),
		PublicInputs: publicInputs,
	}
}

func mulG1(p bn254.G1Affine, k *big.Int) bn254.G1Affine {
	var out bn254.G1Affine
	out.ScalarMultiplication(&p, k)
	return out
}

func mulG2(p bn254.G2Affine, k *big.Int) bn254.G2Affine {
	var out bn254.G2Affine
	out.ScalarMultiplication(&p, k)
	return out
}

func TestVerifyingKeyVerify(t *testing.T) {
	f := newFixture(2)
	proof := f.prove(big.NewInt(5), big.NewInt(7))
	require.NoError(t, f.vk.Verify(proof))

	tests := []struct {
		name  string
		proof *prover.Proof
	}{
		{"tampered public input", &prover.Proof{
			A: proof.A, B: proof.B, C: proof.C,
			PublicInputs: []*big.Int{big.NewInt(6), big.NewInt(7)},
		}},
		{"missing public input", &prover.Proof{
			A: proof.A, B: proof.B, C: proof.C,
			PublicInputs: []*big.Int{big.NewInt(5)},
		}},
		{"swapped points", &prover.Proof{
			A: proof.C, B: proof.B, C: proof.A,
			PublicInputs: proof.PublicInputs,
		}},
		{"nil proof", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, f.vk.Verify(tt.proof), prover.ErrInvalidProof)
		})
	}
}

func TestSnarkjsRoundTrip(t *testing.T) {
	f := newFixture(1)
	proof := f.prove(big.NewInt(42))

	buf, err := json.Marshal(proof.Snarkjs())
	require.NoError(t, err)
	parsed, err := prover.ParseProof(buf)
	require.NoError(t, err)
	require.NoError(t, f.vk.Verify(parsed))

	a, b, c := parsed.Bytes()
	ea, eb, ec := proof.Bytes()
	require.Equal(t, ea, a)
	require.Equal(t, eb, b)
	require.Equal(t, ec, c)
	require.Equal(t, 32, len(parsed.PublicInputBytes()[0]))

	_, err = prover.ParseProof([]byte(`{"pi_a":["1","1","1"]}`))
	require.Error(t, err)
}

type stubProver struct {
	proof *prover.Proof
	err   error
}

func (s stubProver) Prove(context.Context, string, map[string]any) (*prover.Proof, error) {
	return s.proof, s.err
}

func TestWithVerification(t *testing.T) {
	f := newFixture(1)
	verifier := prover.NewGroth16Verifier(map[string]*prover.VerifyingKey{"circuit": f.vk})
	valid := f.prove(big.NewInt(3))

	p := prover.WithVerification(stubProver{proof: valid}, verifier)
	proof, err := p.Prove(context.Background(), "circuit", nil)
	require.NoError(t, err)
	require.Equal(t, valid, proof)

	invalid := &prover.Proof{A: valid.A, B: valid.B, C: valid.C, PublicInputs: []*big.Int{big.NewInt(4)}}
	p = prover.WithVerification(stubProver{proof: invalid}, verifier)
	_, err = p.Prove(context.Background(), "circuit", nil)
	require.ErrorIs(t, err, prover.ErrInvalidProof)

	p = prover.WithVerification(stubProver{err: errors.New("boom")}, verifier)
	_, err = p.Prove(context.Background(), "circuit", nil)
	require.ErrorIs(t, err, prover.ErrProofGeneration)

	p = prover.WithVerification(stubProver{proof: valid}, verifier)
	_, err = p.Prove(context.Background(), "unknown", nil)
	require.ErrorIs(t, err, prover.ErrInvalidProof)
}
