package utxo

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/hasher"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

const encryptionDomain = "encryption"

// Keypair is the shielded identity owning utxos. The public key goes into
// commitments, the encryption key pair is used to exchange utxo ciphertexts.
// A recipient keypair only carries the public halves.
type Keypair struct {
	PrivateKey          *big.Int
	PublicKey           *big.Int
	EncryptionPublicKey [32]byte

	encryptionSecret *[32]byte
}

// NewKeypair creates a random keypair.
func NewKeypair(h hasher.Hasher) (*Keypair, error) {
	buf := make([]byte, 31)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return NewKeypairFromPrivateKey(h, new(big.Int).SetBytes(buf))
}

// NewKeypairFromSeed derives a keypair from arbitrary seed bytes, usually a
// wallet signature over a fixed message.
func NewKeypairFromSeed(h hasher.Hasher, seed []byte) (*Keypair, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("empty seed")
	}
	digest := blake2b.Sum256(seed)
	return NewKeypairFromPrivateKey(h, field.Mod(new(big.Int).SetBytes(digest[:])))
}

func NewKeypairFromPrivateKey(h hasher.Hasher, privateKey *big.Int) (*Keypair, error) {
	if privateKey == nil || privateKey.Sign() <= 0 || privateKey.Cmp(field.FieldSize) >= 0 {
		return nil, fmt.Errorf("invalid private key")
	}
	pubkey, err := h.Hash(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	privBytes := field.ToBytesBE(privateKey)
	secret := blake2b.Sum256(append(privBytes[:], []byte(encryptionDomain)...))
	encPub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	kp := &Keypair{
		PrivateKey:       new(big.Int).Set(privateKey),
		PublicKey:        pubkey,
		encryptionSecret: &secret,
	}
	copy(kp.EncryptionPublicKey[:], encPub)
	return kp, nil
}

// NewRecipientKeypair wraps the public material of another user.
func NewRecipientKeypair(publicKey *big.Int, encryptionPublicKey [32]byte) *Keypair {
	return &Keypair{
		PublicKey:           new(big.Int).Set(publicKey),
		EncryptionPublicKey: encryptionPublicKey,
	}
}

func (k *Keypair) HasPrivateKey() bool {
	return k != nil && k.PrivateKey != nil && k.encryptionSecret != nil
}

// Sign binds the private key to a commitment at a tree index. The result is
// a nullifier preimage.
func (k *Keypair) Sign(h hasher.Hasher, commitment, index *big.Int) (*big.Int, error) {
	if !k.HasPrivateKey() {
		return nil, ErrPrivateKeyUndefined
	}
	return h.Hash(k.PrivateKey, commitment, index)
}

// Export encodes the private key as base58.
func (k *Keypair) Export() (string, error) {
	if !k.HasPrivateKey() {
		return "", ErrPrivateKeyUndefined
	}
	buf := field.ToBytesBE(k.PrivateKey)
	return base58.Encode(buf[:]), nil
}

// ImportKeypair is the inverse of Export.
func ImportKeypair(h hasher.Hasher, encoded string) (*Keypair, error) {
	buf, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid keypair encoding: %w", err)
	}
	if len(buf) != 32 {
		return nil, fmt.Errorf("invalid keypair length %d", len(buf))
	}
	return NewKeypairFromPrivateKey(h, new(big.Int).SetBytes(buf))
}

// Address is the shareable form of the public material:
// base58(pubkey BE 32 || encryption pubkey 32).
func (k *Keypair) Address() string {
	pub := field.ToBytesBE(k.PublicKey)
	return base58.Encode(append(pub[:], k.EncryptionPublicKey[:]...))
}

// ParseAddress decodes an address produced by Address.
func ParseAddress(address string) (*Keypair, error) {
	buf, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("invalid shielded address: %w", err)
	}
	if len(buf) != 64 {
		return nil, fmt.Errorf("invalid shielded address length %d", len(buf))
	}
	var encPub [32]byte
	copy(encPub[:], buf[32:])
	return NewRecipientKeypair(new(big.Int).SetBytes(buf[:32]), encPub), nil
}
