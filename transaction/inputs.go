package transaction

import (
	"math/big"

	"github.com/shieldpool/go-sdk/utxo"
)

const transactionVersion = "0"

// ProofInput is the witness handed to the prover. Keys follow the circuit
// signal names.
type ProofInput struct {
	Root               string       `mapstructure:"root"`
	InputNullifier     []string     `mapstructure:"inputNullifier"`
	PublicAmountSpl    string       `mapstructure:"publicAmountSpl"`
	PublicAmountSol    string       `mapstructure:"publicAmountSol"`
	PublicMintPubkey   string       `mapstructure:"publicMintPubkey"`
	TxIntegrityHash    string       `mapstructure:"txIntegrityHash"`
	OutputCommitment   []string     `mapstructure:"outputCommitment"`
	InPrivateKey       []string     `mapstructure:"inPrivateKey"`
	InPathIndices      []string     `mapstructure:"inPathIndices"`
	InPathElements     [][]string   `mapstructure:"inPathElements"`
	InAmount           [][]string   `mapstructure:"inAmount"`
	InBlinding         []string     `mapstructure:"inBlinding"`
	InAppDataHash      []string     `mapstructure:"inAppDataHash"`
	InPoolType         []string     `mapstructure:"inPoolType"`
	InVerifierPubkey   []string     `mapstructure:"inVerifierPubkey"`
	InIndices          [][][]string `mapstructure:"inIndices"`
	OutPubkey          []string     `mapstructure:"outPubkey"`
	OutAmount          [][]string   `mapstructure:"outAmount"`
	OutBlinding        []string     `mapstructure:"outBlinding"`
	OutAppDataHash     []string     `mapstructure:"outAppDataHash"`
	OutPoolType        []string     `mapstructure:"outPoolType"`
	OutVerifierPubkey  []string     `mapstructure:"outVerifierPubkey"`
	OutIndices         [][][]string `mapstructure:"outIndices"`
	AssetPubkeys       []string     `mapstructure:"assetPubkeys"`
	TransactionVersion string       `mapstructure:"transactionVersion"`
}

// PublicInputs lists the public signals in the order the verifier program
// expects them.
func (p *ProofInput) PublicInputs() []string {
	out := []string{p.Root, p.PublicAmountSpl, p.TxIntegrityHash, p.PublicAmountSol, p.PublicMintPubkey}
	out = append(out, p.InputNullifier...)
	return append(out, p.OutputCommitment...)
}

// getIndices returns, for every utxo and asset slot, a one-hot vector over
// the asset pubkeys marking the asset the slot holds. Placeholder assets
// (circuit value 0) are never marked.
func getIndices(utxos []*utxo.Utxo, assetPubkeysCircuit []*big.Int) [][][]string {
	indices := make([][][]string, 0, len(utxos))
	for _, u := range utxos {
		perUtxo := make([][]string, 0, utxo.NAssets)
		for slot := 0; slot < utxo.NAssets; slot++ {
			vector := make([]string, 0, len(assetPubkeysCircuit))
			marked := false
			for _, asset := range assetPubkeysCircuit {
				if !marked && asset.Sign() != 0 && u.AssetsCircuit[slot].Cmp(asset) == 0 {
					vector = append(vector, "1")
					marked = true
					continue
				}
				vector = append(vector, "0")
			}
			perUtxo = append(perUtxo, vector)
		}
		indices = append(indices, perUtxo)
	}
	return indices
}

func amountStrings(u *utxo.Utxo) []string {
	out := make([]string, 0, utxo.NAssets)
	for _, a := range u.Amounts {
		out = append(out, a.String())
	}
	return out
}
