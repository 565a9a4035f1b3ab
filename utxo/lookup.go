package utxo

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

type lookupTable struct {
	mu       *sync.RWMutex
	keys     []solana.PublicKey
	notFound error
}

func newLookupTable(notFound error, keys []solana.PublicKey) lookupTable {
	return lookupTable{
		mu:       &sync.RWMutex{},
		keys:     append([]solana.PublicKey{}, keys...),
		notFound: notFound,
	}
}

func (t *lookupTable) IndexOf(key solana.PublicKey) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, k := range t.keys {
		if k.Equals(key) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", t.notFound, key)
}

func (t *lookupTable) Get(index uint64) (solana.PublicKey, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index >= uint64(len(t.keys)) {
		return solana.PublicKey{}, fmt.Errorf("%w: index %d", t.notFound, index)
	}
	return t.keys[index], nil
}

// Append adds key if missing and returns its index.
func (t *lookupTable) Append(key solana.PublicKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, k := range t.keys {
		if k.Equals(key) {
			return i
		}
	}
	t.keys = append(t.keys, key)
	return len(t.keys) - 1
}

func (t *lookupTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}

func (t *lookupTable) Keys() []solana.PublicKey {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]solana.PublicKey{}, t.keys...)
}

// AssetLookupTable maps asset mints to the compact index stored in
// encrypted utxos. Index 0 is always the native asset.
type AssetLookupTable struct {
	*lookupTable
}

func NewAssetLookupTable(mints ...solana.PublicKey) *AssetLookupTable {
	keys := []solana.PublicKey{solana.SystemProgramID}
	for _, m := range mints {
		if !m.Equals(solana.SystemProgramID) {
			keys = append(keys, m)
		}
	}
	t := newLookupTable(ErrAssetNotFound, keys)
	return &AssetLookupTable{&t}
}

// VerifierLookupTable maps verifier programs to their compact index.
type VerifierLookupTable struct {
	*lookupTable
}

func NewVerifierLookupTable(verifiers ...solana.PublicKey) *VerifierLookupTable {
	keys := []solana.PublicKey{solana.SystemProgramID}
	for _, v := range verifiers {
		if !v.Equals(solana.SystemProgramID) {
			keys = append(keys, v)
		}
	}
	t := newLookupTable(ErrVerifierNotFound, keys)
	return &VerifierLookupTable{&t}
}
