package balance

import (
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/hasher"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shieldpool/go-sdk/utxo"
)

// ToShieldedUtxo returns the persisted form of u.
func ToShieldedUtxo(u *utxo.Utxo, status types.UtxoStatus) types.ShieldedUtxo {
	su := types.ShieldedUtxo{
		Commitment:      u.Key(),
		Assets:          [2]string{u.Assets[0].String(), u.Assets[1].String()},
		Blinding:        u.Blinding.String(),
		PoolType:        u.PoolType.String(),
		AppDataHash:     u.AppDataHash.String(),
		VerifierAddress: u.VerifierAddress.String(),
		Status:          status,
		CreatedAt:       time.Now(),
	}
	for i, amount := range u.Amounts {
		su.Amounts[i] = amount.Uint64()
	}
	if u.Index != nil {
		su.Index = *u.Index
	}
	return su
}

// FromShieldedUtxo rebuilds a utxo owned by keypair and checks it against
// the stored commitment.
func FromShieldedUtxo(
	h hasher.Hasher, keypair *utxo.Keypair, su types.ShieldedUtxo,
) (*utxo.Utxo, error) {
	assets := make([]solana.PublicKey, 0, len(su.Assets))
	for _, a := range su.Assets {
		asset, err := solana.PublicKeyFromBase58(a)
		if err != nil {
			return nil, fmt.Errorf("invalid asset %s: %w", a, err)
		}
		assets = append(assets, asset)
	}
	verifier, err := solana.PublicKeyFromBase58(su.VerifierAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid verifier address: %w", err)
	}
	blinding, err := field.FromString(su.Blinding)
	if err != nil {
		return nil, fmt.Errorf("invalid blinding: %w", err)
	}
	poolType, err := field.FromString(su.PoolType)
	if err != nil {
		return nil, fmt.Errorf("invalid pool type: %w", err)
	}
	appDataHash, err := field.FromString(su.AppDataHash)
	if err != nil {
		return nil, fmt.Errorf("invalid app data hash: %w", err)
	}

	args := utxo.Args{
		Amounts: []*big.Int{
			new(big.Int).SetUint64(su.Amounts[0]),
			new(big.Int).SetUint64(su.Amounts[1]),
		},
		Assets:          assets,
		Keypair:         keypair,
		Blinding:        blinding,
		PoolType:        poolType,
		AppDataHash:     appDataHash,
		VerifierAddress: verifier,
	}
	if su.Status != types.UtxoCommitted {
		index := su.Index
		args.Index = &index
	}
	u, err := utxo.NewUtxo(h, args)
	if err != nil {
		return nil, err
	}
	if u.Key() != su.Commitment {
		return nil, fmt.Errorf("commitment mismatch for stored utxo %s", su.Commitment)
	}
	return u, nil
}

// Restore loads persisted utxos into balance with their stored status.
func (b *Balance) Restore(h hasher.Hasher, keypair *utxo.Keypair, utxos []types.ShieldedUtxo) error {
	for _, su := range utxos {
		u, err := FromShieldedUtxo(h, keypair, su)
		if err != nil {
			return err
		}
		switch su.Status {
		case types.UtxoCommitted:
			b.AddCommitted(u)
		case types.UtxoSpendable:
			b.markSpendable(u)
		case types.UtxoInbox:
			b.markInbox(u)
		case types.UtxoSpent:
			b.markSpent(u)
		}
	}
	return nil
}

// ShieldedUtxos returns the persisted form of every utxo of the balance.
func (b *Balance) ShieldedUtxos() []types.ShieldedUtxo {
	out := make([]types.ShieldedUtxo, 0)
	for _, u := range b.CommittedUtxos() {
		out = append(out, ToShieldedUtxo(u, types.UtxoCommitted))
	}
	for _, u := range b.SpendableUtxos() {
		out = append(out, ToShieldedUtxo(u, types.UtxoSpendable))
	}
	for _, u := range b.InboxUtxos() {
		out = append(out, ToShieldedUtxo(u, types.UtxoInbox))
	}
	for _, u := range b.SpentUtxos() {
		out = append(out, ToShieldedUtxo(u, types.UtxoSpent))
	}
	return out
}
