// Package coinselect picks the utxos to spend for a payment and builds the
// outputs that conserve the value of a transaction.
package coinselect

import (
	"math/big"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/utxo"
)

// Target is the amount of an asset the selected inputs must cover, fees
// included.
type Target struct {
	Asset  solana.PublicKey
	Amount *big.Int
}

func (t Target) isNative() bool {
	return t.Asset.Equals(solana.SystemProgramID)
}

// SelectInUtxos greedily picks, for every target, the biggest utxos holding
// the target asset until the target is covered. Existing inputs count both
// towards the targets and towards maxInputs.
//
// Utxos holding an SPL asset that is not targeted are never selected. SPL
// targets are processed before the native one so that the SOL carried by SPL
// utxos is accounted for before picking SOL-only utxos.
func SelectInUtxos(
	available []*utxo.Utxo, targets []Target, maxInputs int, existing ...*utxo.Utxo,
) ([]*utxo.Utxo, error) {
	allowed := map[solana.PublicKey]struct{}{solana.SystemProgramID: {}}
	pending := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.Amount == nil || t.Amount.Sign() <= 0 {
			continue
		}
		allowed[t.Asset] = struct{}{}
		pending = append(pending, t)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return !pending[i].isNative() && pending[j].isNative()
	})

	taken := make(map[string]struct{})
	for _, u := range existing {
		taken[u.Key()] = struct{}{}
	}
	candidates := make([]*utxo.Utxo, 0, len(available))
	for _, u := range available {
		if _, ok := taken[u.Key()]; ok {
			continue
		}
		if spl, ok := u.SplAsset(); ok {
			if _, ok := allowed[spl]; !ok {
				continue
			}
		}
		taken[u.Key()] = struct{}{}
		candidates = append(candidates, u)
	}

	selected := make([]*utxo.Utxo, 0)
	for _, target := range pending {
		sum := sumOf(target.Asset, existing...)
		sum.Add(sum, sumOf(target.Asset, selected...))
		if sum.Cmp(target.Amount) >= 0 {
			continue
		}

		remaining := without(candidates, selected)
		sort.SliceStable(remaining, func(i, j int) bool {
			return remaining[i].Amount(target.Asset).Cmp(remaining[j].Amount(target.Asset)) > 0
		})
		for _, u := range remaining {
			if sum.Cmp(target.Amount) >= 0 || len(selected)+len(existing) >= maxInputs {
				break
			}
			amount := u.Amount(target.Asset)
			if amount.Sign() <= 0 {
				break
			}
			selected = append(selected, u)
			sum.Add(sum, amount)
		}

		if sum.Cmp(target.Amount) < 0 {
			availableAmount := sumOf(target.Asset, existing...)
			availableAmount.Add(availableAmount, sumOf(target.Asset, candidates...))
			return nil, &InsufficientBalanceError{
				Asset:     target.Asset,
				Required:  new(big.Int).Set(target.Amount),
				Available: availableAmount,
				Shortfall: new(big.Int).Sub(target.Amount, sum),
			}
		}
	}
	return selected, nil
}

func sumOf(asset solana.PublicKey, utxos ...*utxo.Utxo) *big.Int {
	sum := new(big.Int)
	for _, u := range utxos {
		sum.Add(sum, u.Amount(asset))
	}
	return sum
}

func without(all, excluded []*utxo.Utxo) []*utxo.Utxo {
	skip := make(map[string]struct{}, len(excluded))
	for _, u := range excluded {
		skip[u.Key()] = struct{}{}
	}
	out := make([]*utxo.Utxo, 0, len(all))
	for _, u := range all {
		if _, ok := skip[u.Key()]; !ok {
			out = append(out, u)
		}
	}
	return out
}
