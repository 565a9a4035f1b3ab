package types

import (
	"math/big"
)

// LeafCommitment returns the commitment of the i-th leaf. Leaves are emitted
// little-endian.
func (t IndexedTransaction) LeafCommitment(i int) *big.Int {
	leaf := t.Leaves[i]
	buf := make([]byte, len(leaf))
	for j := range leaf {
		buf[len(leaf)-1-j] = leaf[j]
	}
	return new(big.Int).SetBytes(buf)
}

// LeafIndex is the tree position of the i-th leaf.
func (t IndexedTransaction) LeafIndex(i int) uint64 {
	return t.FirstLeafIndex + uint64(i)
}

// NullifierValue returns the i-th nullifier. Nullifiers are emitted
// big-endian.
func (t IndexedTransaction) NullifierValue(i int) *big.Int {
	return new(big.Int).SetBytes(t.Nullifiers[i][:])
}

// EncryptedUtxo returns the ciphertext paired with the i-th leaf, or false
// when the blob is too short to hold it.
func (t IndexedTransaction) EncryptedUtxo(i, size int) ([]byte, bool) {
	start := i * size
	end := start + size
	if i < 0 || size <= 0 || end > len(t.EncryptedUtxos) {
		return nil, false
	}
	return t.EncryptedUtxos[start:end], true
}
