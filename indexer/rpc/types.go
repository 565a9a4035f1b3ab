package rpcledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/indexer"
)

// transactionResult is the json encoded getTransaction response, kept raw
// so instruction data stays base58.
type transactionResult struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err               any `json:"err"`
		InnerInstructions []struct {
			Index        int                   `json:"index"`
			Instructions []compiledInstruction `json:"instructions"`
		} `json:"innerInstructions"`
		LoadedAddresses struct {
			Writable []string `json:"writable"`
			Readonly []string `json:"readonly"`
		} `json:"loadedAddresses"`
	} `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys  []string              `json:"accountKeys"`
			Instructions []compiledInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

type compiledInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

func (r *transactionResult) toRaw(signature string) (*indexer.RawTransaction, error) {
	if r.Meta == nil {
		return nil, fmt.Errorf("missing transaction meta")
	}

	// static keys first, then the writable and readonly keys loaded from
	// lookup tables
	keys := make([]solana.PublicKey, 0, len(r.Transaction.Message.AccountKeys))
	for _, group := range [][]string{
		r.Transaction.Message.AccountKeys,
		r.Meta.LoadedAddresses.Writable,
		r.Meta.LoadedAddresses.Readonly,
	} {
		for _, k := range group {
			key, err := solana.PublicKeyFromBase58(k)
			if err != nil {
				return nil, fmt.Errorf("invalid account key %s: %w", k, err)
			}
			keys = append(keys, key)
		}
	}

	resolve := func(ix compiledInstruction) (indexer.RawInstruction, error) {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(keys) {
			return indexer.RawInstruction{}, fmt.Errorf("program index %d out of range", ix.ProgramIDIndex)
		}
		accounts := make([]solana.PublicKey, 0, len(ix.Accounts))
		for _, i := range ix.Accounts {
			if i < 0 || i >= len(keys) {
				return indexer.RawInstruction{}, fmt.Errorf("account index %d out of range", i)
			}
			accounts = append(accounts, keys[i])
		}
		return indexer.RawInstruction{
			ProgramID: keys[ix.ProgramIDIndex],
			Accounts:  accounts,
			Data:      ix.Data,
		}, nil
	}

	tx := &indexer.RawTransaction{
		Signature:   signature,
		Slot:        r.Slot,
		BlockTime:   r.BlockTime,
		Failed:      r.Meta.Err != nil,
		AccountKeys: keys,
	}
	if len(r.Transaction.Signatures) > 0 {
		tx.Signature = r.Transaction.Signatures[0]
	}
	for _, ix := range r.Transaction.Message.Instructions {
		raw, err := resolve(ix)
		if err != nil {
			return nil, err
		}
		tx.Instructions = append(tx.Instructions, raw)
	}
	for _, inner := range r.Meta.InnerInstructions {
		for _, ix := range inner.Instructions {
			raw, err := resolve(ix)
			if err != nil {
				return nil, err
			}
			tx.InnerInstructions = append(tx.InnerInstructions, raw)
		}
	}
	return tx, nil
}
