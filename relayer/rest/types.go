package rest

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/types"
)

type accountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type instruction struct {
	ProgramID string        `json:"programId"`
	Keys      []accountMeta `json:"keys"`
	// Data is base64 encoded.
	Data string `json:"data"`
}

type relayRequest struct {
	Instructions []instruction `json:"instructions"`
}

type relayResponse struct {
	Signature string `json:"signature"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type relayerInfo struct {
	RelayerPubkey       string `json:"relayerPubkey"`
	RelayerRecipientSol string `json:"relayerRecipientSol"`
	RelayerFee          string `json:"relayerFee"`
	HighRelayerFee      string `json:"highRelayerFee"`
	LookUpTable         string `json:"lookUpTable"`
}

type indexedTransaction struct {
	Signature           string   `json:"signature"`
	BlockTime           int64    `json:"blockTime"`
	Type                string   `json:"type"`
	Signer              string   `json:"signer"`
	From                string   `json:"from"`
	To                  string   `json:"to"`
	FromSpl             string   `json:"fromSpl"`
	ToSpl               string   `json:"toSpl"`
	RelayerRecipientSol string   `json:"relayerRecipientSol"`
	PublicAmountSol     string   `json:"publicAmountSol"`
	PublicAmountSpl     string   `json:"publicAmountSpl"`
	RelayerFee          uint64   `json:"relayerFee"`
	Leaves              []string `json:"leaves"`
	Nullifiers          []string `json:"nullifiers"`
	EncryptedUtxos      string   `json:"encryptedUtxos"`
	FirstLeafIndex      uint64   `json:"firstLeafIndex"`
	Message             string   `json:"message"`
}

var actions = map[string]types.Action{
	types.ActionShield.String():   types.ActionShield,
	types.ActionUnshield.String(): types.ActionUnshield,
	types.ActionTransfer.String(): types.ActionTransfer,
}

func toInstruction(ix solana.Instruction) (instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return instruction{}, fmt.Errorf("failed to encode instruction data: %w", err)
	}
	keys := make([]accountMeta, 0, len(ix.Accounts()))
	for _, meta := range ix.Accounts() {
		keys = append(keys, accountMeta{
			Pubkey:     meta.PublicKey.String(),
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		})
	}
	return instruction{
		ProgramID: ix.ProgramID().String(),
		Keys:      keys,
		Data:      base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (r relayerInfo) toRelayer(url string) (types.Relayer, error) {
	pubkey, err := solana.PublicKeyFromBase58(r.RelayerPubkey)
	if err != nil {
		return types.Relayer{}, fmt.Errorf("invalid relayer pubkey: %w", err)
	}
	recipient, err := solana.PublicKeyFromBase58(r.RelayerRecipientSol)
	if err != nil {
		return types.Relayer{}, fmt.Errorf("invalid relayer recipient: %w", err)
	}
	relayer := types.Relayer{Pubkey: pubkey, RecipientSol: recipient, URL: url}
	if r.LookUpTable != "" {
		if relayer.LookupTable, err = solana.PublicKeyFromBase58(r.LookUpTable); err != nil {
			return types.Relayer{}, fmt.Errorf("invalid lookup table: %w", err)
		}
	}
	if relayer.Fee, err = parseAmount(r.RelayerFee); err != nil {
		return types.Relayer{}, fmt.Errorf("invalid relayer fee: %w", err)
	}
	if relayer.HighFee, err = parseAmount(r.HighRelayerFee); err != nil {
		return types.Relayer{}, fmt.Errorf("invalid high relayer fee: %w", err)
	}
	return relayer, nil
}

func (t indexedTransaction) toIndexed() (types.IndexedTransaction, error) {
	tx := types.IndexedTransaction{
		Signature:      t.Signature,
		BlockTime:      time.UnixMilli(t.BlockTime),
		Type:           actions[t.Type],
		RelayerFee:     t.RelayerFee,
		FirstLeafIndex: t.FirstLeafIndex,
	}

	keys := []struct {
		src string
		dst *solana.PublicKey
	}{
		{t.Signer, &tx.Signer},
		{t.From, &tx.From},
		{t.To, &tx.To},
		{t.FromSpl, &tx.FromSpl},
		{t.ToSpl, &tx.ToSpl},
		{t.RelayerRecipientSol, &tx.RelayerRecipientSol},
	}
	for _, k := range keys {
		if k.src == "" {
			continue
		}
		key, err := solana.PublicKeyFromBase58(k.src)
		if err != nil {
			return types.IndexedTransaction{}, fmt.Errorf("invalid account %s: %w", k.src, err)
		}
		*k.dst = key
	}

	var err error
	if tx.PublicAmountSol, err = parseAmount(t.PublicAmountSol); err != nil {
		return types.IndexedTransaction{}, err
	}
	if tx.PublicAmountSpl, err = parseAmount(t.PublicAmountSpl); err != nil {
		return types.IndexedTransaction{}, err
	}
	if tx.Leaves, err = parseHashes(t.Leaves); err != nil {
		return types.IndexedTransaction{}, fmt.Errorf("invalid leaves: %w", err)
	}
	if len(tx.Leaves)%2 != 0 {
		return types.IndexedTransaction{}, fmt.Errorf("odd number of leaves: %d", len(tx.Leaves))
	}
	if tx.Nullifiers, err = parseHashes(t.Nullifiers); err != nil {
		return types.IndexedTransaction{}, fmt.Errorf("invalid nullifiers: %w", err)
	}
	if tx.EncryptedUtxos, err = base64.StdEncoding.DecodeString(t.EncryptedUtxos); err != nil {
		return types.IndexedTransaction{}, fmt.Errorf("invalid encrypted utxos: %w", err)
	}
	if tx.Message, err = base64.StdEncoding.DecodeString(t.Message); err != nil {
		return types.IndexedTransaction{}, fmt.Errorf("invalid message: %w", err)
	}
	return tx, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseHashes(in []string) ([][32]byte, error) {
	out := make([][32]byte, 0, len(in))
	for _, s := range in {
		buf, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		if len(buf) != 32 {
			return nil, fmt.Errorf("expected 32 bytes, got %d", len(buf))
		}
		out = append(out, [32]byte(buf))
	}
	return out, nil
}
