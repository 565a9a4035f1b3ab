package utxo

import "errors"

var (
	ErrAssetsAmountsMismatch = errors.New("assets and amounts length mismatch")
	ErrTooManyAssets         = errors.New("too many assets for a single utxo")
	ErrNativeAssetMissing    = errors.New("first asset of a utxo must be the native asset")
	ErrNegativeAmount        = errors.New("utxo amount must not be negative")
	ErrAmountOverflow        = errors.New("utxo amount does not fit in u64")
	ErrKeypairUndefined      = errors.New("utxo keypair undefined")
	ErrIndexUndefined        = errors.New("utxo index undefined, utxo not inserted in merkle tree")
	ErrPrivateKeyUndefined   = errors.New("keypair has no private key")
	ErrAssetNotFound         = errors.New("asset not found in lookup table")
	ErrVerifierNotFound      = errors.New("verifier not found in lookup table")
	ErrInvalidCiphertext     = errors.New("invalid encrypted utxo length")
	// ErrNotOwned is returned by Decrypt when the ciphertext does not belong
	// to the given keypair. Callers scanning leaves treat it as a skip.
	ErrNotOwned = errors.New("utxo not owned by keypair")
)
