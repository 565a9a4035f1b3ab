package utxo

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ccoveille/go-safecast"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/hasher"
	"golang.org/x/crypto/nacl/box"
)

const (
	blindingLength = 31
	// PlaintextLength is the borsh size of utxoBytes.
	PlaintextLength = 2*8 + 8 + 8 + blindingLength + 32 + 8
	// EncryptedUtxoLength is ephemeral pubkey || sealed plaintext.
	EncryptedUtxoLength = 32 + PlaintextLength + box.Overhead
)

// utxoBytes is the compact form carried inside encrypted utxos. The owner is
// implicit: whoever decrypts it owns it.
type utxoBytes struct {
	Amounts              [NAssets]uint64
	SplAssetIndex        uint64
	VerifierAddressIndex uint64
	Blinding             [blindingLength]byte
	AppDataHash          [32]byte
	PoolType             uint64
}

// ToBytes serializes the utxo with its asset and verifier replaced by their
// lookup table indices.
func (u *Utxo) ToBytes(assets *AssetLookupTable, verifiers *VerifierLookupTable) ([]byte, error) {
	var data utxoBytes
	for i, amount := range u.Amounts {
		data.Amounts[i] = amount.Uint64()
	}

	splIndex, err := assets.IndexOf(u.Assets[1])
	if err != nil {
		return nil, err
	}
	verifierIndex, err := verifiers.IndexOf(u.VerifierAddress)
	if err != nil {
		return nil, err
	}
	if data.SplAssetIndex, err = safecast.ToUint64(splIndex); err != nil {
		return nil, err
	}
	if data.VerifierAddressIndex, err = safecast.ToUint64(verifierIndex); err != nil {
		return nil, err
	}

	if u.Blinding.BitLen() > blindingLength*8 {
		return nil, fmt.Errorf("blinding exceeds %d bytes", blindingLength)
	}
	u.Blinding.FillBytes(data.Blinding[:])
	data.AppDataHash = field.ToBytesBE(u.AppDataHash)
	if !field.FitsU64(u.PoolType) {
		return nil, fmt.Errorf("pool type does not fit in u64")
	}
	data.PoolType = u.PoolType.Uint64()

	buf, err := bin.MarshalBorsh(&data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize utxo: %w", err)
	}
	return buf, nil
}

// FromBytes rebuilds a utxo owned by keypair from its compact form.
func FromBytes(
	h hasher.Hasher, keypair *Keypair, buf []byte,
	assets *AssetLookupTable, verifiers *VerifierLookupTable, index *uint64,
) (*Utxo, error) {
	if len(buf) != PlaintextLength {
		return nil, fmt.Errorf("invalid utxo bytes length %d", len(buf))
	}
	var data utxoBytes
	if err := bin.UnmarshalBorsh(&data, buf); err != nil {
		return nil, fmt.Errorf("failed to deserialize utxo: %w", err)
	}

	splAsset, err := assets.Get(data.SplAssetIndex)
	if err != nil {
		return nil, err
	}
	verifier, err := verifiers.Get(data.VerifierAddressIndex)
	if err != nil {
		return nil, err
	}

	native, _ := assets.Get(0)
	return NewUtxo(h, Args{
		Amounts: []*big.Int{
			new(big.Int).SetUint64(data.Amounts[0]),
			new(big.Int).SetUint64(data.Amounts[1]),
		},
		Assets:          []solana.PublicKey{native, splAsset},
		Keypair:         keypair,
		Blinding:        new(big.Int).SetBytes(data.Blinding[:]),
		PoolType:        new(big.Int).SetUint64(data.PoolType),
		AppDataHash:     new(big.Int).SetBytes(data.AppDataHash[:]),
		VerifierAddress: verifier,
		Index:           index,
	})
}

// Encrypt seals the utxo for its owner's encryption key. The nonce is taken
// from the commitment so the receiver can open it knowing only the leaf.
func (u *Utxo) Encrypt(assets *AssetLookupTable, verifiers *VerifierLookupTable) ([]byte, error) {
	plaintext, err := u.ToBytes(assets, verifiers)
	if err != nil {
		return nil, err
	}
	ephemeralPub, ephemeralPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	nonce := commitmentNonce(u.commitment)
	recipient := u.Keypair.EncryptionPublicKey

	out := make([]byte, 0, EncryptedUtxoLength)
	out = append(out, ephemeralPub[:]...)
	return box.Seal(out, plaintext, &nonce, &recipient, ephemeralPriv), nil
}

// Decrypt opens a ciphertext published next to the leaf commitment. It
// returns ErrNotOwned when the ciphertext is not for keypair or does not
// match the commitment.
func Decrypt(
	h hasher.Hasher, keypair *Keypair, ciphertext []byte, commitment *big.Int,
	assets *AssetLookupTable, verifiers *VerifierLookupTable, index *uint64,
) (*Utxo, error) {
	if !keypair.HasPrivateKey() {
		return nil, ErrPrivateKeyUndefined
	}
	if len(ciphertext) != EncryptedUtxoLength {
		return nil, ErrInvalidCiphertext
	}
	var ephemeralPub [32]byte
	copy(ephemeralPub[:], ciphertext[:32])
	nonce := commitmentNonce(commitment)

	plaintext, ok := box.Open(nil, ciphertext[32:], &nonce, &ephemeralPub, keypair.encryptionSecret)
	if !ok {
		return nil, ErrNotOwned
	}
	u, err := FromBytes(h, keypair, plaintext, assets, verifiers, index)
	if err != nil {
		return nil, err
	}
	if u.commitment.Cmp(commitment) != 0 {
		return nil, ErrNotOwned
	}
	return u, nil
}

func commitmentNonce(commitment *big.Int) [24]byte {
	var nonce [24]byte
	buf := field.ToBytesBE(commitment)
	copy(nonce[:], buf[:24])
	return nonce
}
