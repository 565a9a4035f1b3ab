package hasher

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Hasher is the algebraic hash used for commitments, nullifiers, keypairs
// and the merkle tree.
type Hasher interface {
	Hash(inputs ...*big.Int) (*big.Int, error)
}

type poseidonHasher struct{}

// NewPoseidon returns a circom-compatible Poseidon hasher over BN254.
func NewPoseidon() Hasher {
	return poseidonHasher{}
}

func (poseidonHasher) Hash(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("poseidon: no inputs")
	}
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("poseidon: input %d is nil", i)
		}
	}
	h, err := poseidon.Hash(inputs)
	if err != nil {
		return nil, fmt.Errorf("poseidon: %w", err)
	}
	return h, nil
}

// MustHash panics on error, for inputs known to be valid field elements.
func MustHash(h Hasher, inputs ...*big.Int) *big.Int {
	out, err := h.Hash(inputs...)
	if err != nil {
		panic(err)
	}
	return out
}
