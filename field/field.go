// Package field holds the BN254 scalar field helpers shared by every
// component that builds or inspects circuit inputs.
//
// Negative amounts never appear as signed integers: a value x leaving the
// pool is encoded as FieldSize - x, which is what the on-chain verifier
// expects.
package field

import (
	"crypto/sha256"
	"fmt"
	"math"
	"math/big"
)

var (
	// FieldSize is the scalar modulus of the proof system.
	FieldSize, _ = new(big.Int).SetString(
		"21888242871839275222246405745257275088548364400416034343698204186575808495617", 10,
	)
	// MaxU64 is the largest amount a public token account can move.
	MaxU64 = new(big.Int).SetUint64(math.MaxUint64)
)

// Mod reduces x into [0, FieldSize).
func Mod(x *big.Int) *big.Int {
	r := new(big.Int).Mod(x, FieldSize)
	if r.Sign() < 0 {
		r.Add(r, FieldSize)
	}
	return r
}

// Negate returns the wraparound encoding of -x. Negate(0) is 0.
func Negate(x *big.Int) *big.Int {
	return Mod(new(big.Int).Sub(FieldSize, x))
}

// FitsU64 reports whether 0 <= x <= MaxU64.
func FitsU64(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(MaxU64) <= 0
}

// IsNegativeEncoding reports whether x, taken as a field element, encodes a
// negative amount whose magnitude fits in an u64.
func IsNegativeEncoding(x *big.Int) bool {
	if x.Sign() == 0 {
		return false
	}
	return FitsU64(new(big.Int).Sub(FieldSize, x))
}

// Sum adds the given values without reduction.
func Sum(values ...*big.Int) *big.Int {
	s := new(big.Int)
	for _, v := range values {
		if v != nil {
			s.Add(s, v)
		}
	}
	return s
}

// ToBytesBE returns the 32-byte big-endian encoding of x mod FieldSize.
func ToBytesBE(x *big.Int) [32]byte {
	var out [32]byte
	Mod(x).FillBytes(out[:])
	return out
}

// ToBytesLE returns the 32-byte little-endian encoding of x mod FieldSize.
func ToBytesLE(x *big.Int) [32]byte {
	out := ToBytesBE(x)
	reverse(out[:])
	return out
}

// FromBytesBE interprets b as a big-endian unsigned integer.
func FromBytesBE(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// FromBytesLE interprets b as a little-endian unsigned integer.
func FromBytesLE(b []byte) *big.Int {
	buf := make([]byte, len(b))
	copy(buf, b)
	reverse(buf)
	return new(big.Int).SetBytes(buf)
}

// FromString parses a decimal string.
func FromString(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid field element %q", s)
	}
	return v, nil
}

// HashAndTruncateToCircuit hashes data with sha256 and drops the first byte
// so the result always fits in the field.
func HashAndTruncateToCircuit(data []byte) *big.Int {
	h := sha256.Sum256(data)
	return new(big.Int).SetBytes(h[1:])
}

// Strings formats values as decimal strings, the representation the prover
// consumes.
func Strings(values []*big.Int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.String())
	}
	return out
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
