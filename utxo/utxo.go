// Package utxo implements the shielded note: amounts per asset owned by a
// shielded keypair, bound by a Poseidon commitment and spent by revealing
// its nullifier.
package utxo

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/hasher"
)

// NAssets is the number of amount slots of a utxo: slot 0 holds the native
// asset, slot 1 a single SPL asset.
const NAssets = 2

var nativeAssetCircuit = field.HashAndTruncateToCircuit(solana.SystemProgramID.Bytes())

// NativeAssetCircuit is the circuit value of the native asset.
func NativeAssetCircuit() *big.Int {
	return new(big.Int).Set(nativeAssetCircuit)
}

// AssetToCircuit maps an asset to its circuit value. The native asset is
// only meaningful in slot 0; anywhere else it stands for "no asset" (0).
func AssetToCircuit(asset solana.PublicKey, slot int) *big.Int {
	if asset.Equals(solana.SystemProgramID) {
		if slot == 0 {
			return NativeAssetCircuit()
		}
		return big.NewInt(0)
	}
	return field.HashAndTruncateToCircuit(asset.Bytes())
}

// Utxo must be treated as immutable once created: a spend is recorded in the
// owner's balance, never on the utxo itself.
type Utxo struct {
	Amounts                [NAssets]*big.Int
	Assets                 [NAssets]solana.PublicKey
	AssetsCircuit          [NAssets]*big.Int
	Blinding               *big.Int
	Keypair                *Keypair
	PoolType               *big.Int
	AppDataHash            *big.Int
	AppData                []byte
	VerifierAddress        solana.PublicKey
	VerifierAddressCircuit *big.Int
	// Index is the leaf position in the merkle tree, nil until inserted.
	Index *uint64

	commitment *big.Int
}

type Args struct {
	Amounts         []*big.Int
	Assets          []solana.PublicKey
	Keypair         *Keypair
	Blinding        *big.Int
	PoolType        *big.Int
	AppData         []byte
	AppDataHash     *big.Int
	VerifierAddress solana.PublicKey
	Index           *uint64
}

func NewUtxo(h hasher.Hasher, args Args) (*Utxo, error) {
	if args.Keypair == nil {
		return nil, ErrKeypairUndefined
	}
	if len(args.Assets) != len(args.Amounts) {
		return nil, ErrAssetsAmountsMismatch
	}
	if len(args.Assets) > NAssets {
		return nil, ErrTooManyAssets
	}
	if len(args.Assets) > 0 && !args.Assets[0].Equals(solana.SystemProgramID) {
		return nil, ErrNativeAssetMissing
	}

	u := &Utxo{
		Keypair:         args.Keypair,
		PoolType:        big.NewInt(0),
		AppDataHash:     big.NewInt(0),
		VerifierAddress: solana.SystemProgramID,
	}
	for i := 0; i < NAssets; i++ {
		u.Amounts[i] = big.NewInt(0)
		u.Assets[i] = solana.SystemProgramID
		if i < len(args.Amounts) {
			amount := args.Amounts[i]
			if amount == nil {
				amount = big.NewInt(0)
			}
			if amount.Sign() < 0 {
				return nil, ErrNegativeAmount
			}
			if !field.FitsU64(amount) {
				return nil, ErrAmountOverflow
			}
			u.Amounts[i] = new(big.Int).Set(amount)
			u.Assets[i] = args.Assets[i]
		}
		u.AssetsCircuit[i] = AssetToCircuit(u.Assets[i], i)
	}

	if args.Blinding != nil {
		u.Blinding = new(big.Int).Set(args.Blinding)
	} else {
		blinding, err := randomBlinding()
		if err != nil {
			return nil, err
		}
		u.Blinding = blinding
	}
	if args.PoolType != nil {
		u.PoolType = new(big.Int).Set(args.PoolType)
	}
	if len(args.AppData) > 0 {
		u.AppData = append([]byte{}, args.AppData...)
		u.AppDataHash = field.HashAndTruncateToCircuit(args.AppData)
	}
	if args.AppDataHash != nil {
		u.AppDataHash = new(big.Int).Set(args.AppDataHash)
	}
	if !args.VerifierAddress.IsZero() {
		u.VerifierAddress = args.VerifierAddress
	}
	u.VerifierAddressCircuit = big.NewInt(0)
	if !u.VerifierAddress.Equals(solana.SystemProgramID) {
		u.VerifierAddressCircuit = field.HashAndTruncateToCircuit(u.VerifierAddress.Bytes())
	}
	if args.Index != nil {
		idx := *args.Index
		u.Index = &idx
	}

	commitment, err := u.computeCommitment(h)
	if err != nil {
		return nil, fmt.Errorf("failed to compute utxo commitment: %w", err)
	}
	u.commitment = commitment
	return u, nil
}

// NewEmptyUtxo returns a zero-amount utxo used to pad inputs and outputs to
// the verifier arity.
func NewEmptyUtxo(h hasher.Hasher, keypair *Keypair) (*Utxo, error) {
	if keypair == nil {
		kp, err := NewKeypair(h)
		if err != nil {
			return nil, err
		}
		keypair = kp
	}
	return NewUtxo(h, Args{Keypair: keypair})
}

func (u *Utxo) computeCommitment(h hasher.Hasher) (*big.Int, error) {
	amountHash, err := h.Hash(u.Amounts[:]...)
	if err != nil {
		return nil, err
	}
	assetHash, err := h.Hash(u.AssetsCircuit[:]...)
	if err != nil {
		return nil, err
	}
	return h.Hash(
		amountHash,
		u.Keypair.PublicKey,
		u.Blinding,
		assetHash,
		u.AppDataHash,
		u.PoolType,
		u.VerifierAddressCircuit,
	)
}

func (u *Utxo) Commitment() *big.Int {
	return new(big.Int).Set(u.commitment)
}

// Key is the commitment as decimal string, the dedup key across stores and
// balances.
func (u *Utxo) Key() string {
	return u.commitment.String()
}

// Nullifier is only defined once the utxo has a tree index. Empty padding
// utxos use index 0.
func (u *Utxo) Nullifier(h hasher.Hasher) (*big.Int, error) {
	index := big.NewInt(0)
	if u.Index != nil {
		index.SetUint64(*u.Index)
	} else if !u.IsEmpty() {
		return nil, ErrIndexUndefined
	}
	signature, err := u.Keypair.Sign(h, u.commitment, index)
	if err != nil {
		return nil, err
	}
	return h.Hash(u.commitment, index, signature)
}

// WithIndex returns a copy of the utxo placed at the given leaf index.
func (u *Utxo) WithIndex(index uint64) *Utxo {
	cp := *u
	cp.Index = &index
	return &cp
}

func (u *Utxo) IsEmpty() bool {
	for _, a := range u.Amounts {
		if a.Sign() != 0 {
			return false
		}
	}
	return true
}

// Amount returns the amount held for the given asset.
func (u *Utxo) Amount(asset solana.PublicKey) *big.Int {
	if asset.Equals(solana.SystemProgramID) {
		return new(big.Int).Set(u.Amounts[0])
	}
	sum := new(big.Int)
	for i := 1; i < NAssets; i++ {
		if u.Assets[i].Equals(asset) {
			sum.Add(sum, u.Amounts[i])
		}
	}
	return sum
}

// SplAsset returns the non-native asset held in slot 1, if any.
func (u *Utxo) SplAsset() (solana.PublicKey, bool) {
	if u.Assets[1].Equals(solana.SystemProgramID) {
		return solana.PublicKey{}, false
	}
	return u.Assets[1], true
}

func (u *Utxo) String() string {
	index := "none"
	if u.Index != nil {
		index = fmt.Sprintf("%d", *u.Index)
	}
	return fmt.Sprintf(
		"utxo(commitment=%s, amounts=[%s %s], spl=%s, index=%s)",
		u.commitment, u.Amounts[0], u.Amounts[1], u.Assets[1], index,
	)
}

func randomBlinding() (*big.Int, error) {
	buf := make([]byte, blindingLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate blinding: %w", err)
	}
	return new(big.Int).SetBytes(buf), nil
}
