package transaction

import (
	"errors"

	"github.com/shieldpool/go-sdk/prover"
)

var (
	// ErrInputNotInMerkleTree means the local tree mirror is behind the
	// ledger. Refreshing the mirror and retrying once is expected to fix it.
	ErrInputNotInMerkleTree = errors.New("input utxo not found in merkle tree")
	ErrRootNotFound         = errors.New("merkle tree root not found on chain")
	ErrNotCompiled          = errors.New("transaction not compiled")
	ErrProofMissing         = errors.New("transaction has no proof")
	ErrRootIndexMissing     = errors.New("transaction root index unknown")
	ErrNoProofVerifier      = errors.New("no proof verifier configured")

	ErrProofGeneration = prover.ErrProofGeneration
	ErrInvalidProof    = prover.ErrInvalidProof
)

// IsStale reports whether err is caused by an outdated local tree mirror.
func IsStale(err error) bool {
	return errors.Is(err, ErrInputNotInMerkleTree) || errors.Is(err, ErrRootNotFound)
}
