package txparams

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/utxo"
)

// AssetPubkeys lists the native asset followed by every distinct SPL asset
// of inputs then outputs, in first-seen order, padded to max entries with
// the native placeholder (circuit value 0).
func AssetPubkeys(
	inputs, outputs []*utxo.Utxo, max int,
) ([]solana.PublicKey, []*big.Int, error) {
	if len(inputs) == 0 && len(outputs) == 0 {
		return nil, nil, ErrNoUtxosProvided
	}

	pubkeys := []solana.PublicKey{solana.SystemProgramID}
	circuit := []*big.Int{utxo.NativeAssetCircuit()}
	seen := map[string]struct{}{circuit[0].String(): {}}

	collect := func(utxos []*utxo.Utxo) {
		for _, u := range utxos {
			value := u.AssetsCircuit[1]
			if value.Sign() == 0 {
				continue
			}
			if _, ok := seen[value.String()]; ok {
				continue
			}
			seen[value.String()] = struct{}{}
			pubkeys = append(pubkeys, u.Assets[1])
			circuit = append(circuit, new(big.Int).Set(value))
		}
	}
	collect(inputs)
	collect(outputs)

	if len(pubkeys) > max {
		return nil, nil, ErrAssetPubkeysOverflow.with("%d distinct assets, max %d", len(pubkeys), max)
	}
	for len(pubkeys) < max {
		pubkeys = append(pubkeys, solana.SystemProgramID)
		circuit = append(circuit, big.NewInt(0))
	}
	return pubkeys, circuit, nil
}
