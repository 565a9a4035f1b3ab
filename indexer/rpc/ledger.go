// Package rpcledger implements the indexer Ledger over the Solana JSON-RPC
// api.
package rpcledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shieldpool/go-sdk/indexer"
	"github.com/shieldpool/go-sdk/internal/utils"
	log "github.com/sirupsen/logrus"
)

const (
	maxAccountsPerRequest = 100
	merkleTreeHeight      = 18
	rootHistorySize       = 20
)

type ledger struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

func NewLedger(rpcURL string) (indexer.Ledger, error) {
	if len(rpcURL) == 0 {
		return nil, fmt.Errorf("missing rpc url")
	}
	return &ledger{
		client:     rpc.New(rpcURL),
		commitment: rpc.CommitmentConfirmed,
	}, nil
}

func (l *ledger) GetSignaturesForAddress(
	ctx context.Context, address solana.PublicKey, opts indexer.SignaturesOptions,
) ([]indexer.SignatureInfo, error) {
	rpcOpts := &rpc.GetSignaturesForAddressOpts{Commitment: l.commitment}
	if opts.Limit > 0 {
		limit := opts.Limit
		rpcOpts.Limit = &limit
	}
	if opts.Before != "" {
		sig, err := solana.SignatureFromBase58(opts.Before)
		if err != nil {
			return nil, fmt.Errorf("invalid before signature: %w", err)
		}
		rpcOpts.Before = sig
	}
	if opts.Until != "" {
		sig, err := solana.SignatureFromBase58(opts.Until)
		if err != nil {
			return nil, fmt.Errorf("invalid until signature: %w", err)
		}
		rpcOpts.Until = sig
	}

	res, err := l.client.GetSignaturesForAddressWithOpts(ctx, address, rpcOpts)
	if err != nil {
		return nil, err
	}
	out := make([]indexer.SignatureInfo, 0, len(res))
	for _, s := range res {
		info := indexer.SignatureInfo{
			Signature: s.Signature.String(),
			Slot:      s.Slot,
			Failed:    s.Err != nil,
		}
		if s.BlockTime != nil {
			blockTime := int64(*s.BlockTime)
			info.BlockTime = &blockTime
		}
		out = append(out, info)
	}
	return out, nil
}

func (l *ledger) GetTransactions(ctx context.Context, signatures []string) ([]*indexer.RawTransaction, error) {
	out := make([]*indexer.RawTransaction, 0, len(signatures))
	for _, sig := range signatures {
		var res *transactionResult
		params := []any{sig, map[string]any{
			"encoding":                       "json",
			"commitment":                     l.commitment,
			"maxSupportedTransactionVersion": 0,
		}}
		if err := l.client.RPCCallForInto(ctx, &res, "getTransaction", params); err != nil {
			return nil, fmt.Errorf("failed to get transaction %s: %w", sig, err)
		}
		if res == nil {
			out = append(out, nil)
			continue
		}
		tx, err := res.toRaw(sig)
		if err != nil {
			log.WithError(err).Warnf("rpc: malformed transaction %s", sig)
			out = append(out, nil)
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (l *ledger) GetAccountInfo(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	res, err := l.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: l.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, nil
	}
	return res.Value.Data.GetBinary(), nil
}

func (l *ledger) AccountsExist(ctx context.Context, accounts []solana.PublicKey) ([]bool, error) {
	out := make([]bool, 0, len(accounts))
	for _, chunk := range utils.Chunk(accounts, maxAccountsPerRequest) {
		res, err := l.client.GetMultipleAccountsWithOpts(ctx, chunk, &rpc.GetMultipleAccountsOpts{
			Commitment: l.commitment,
		})
		if err != nil {
			return nil, err
		}
		if len(res.Value) != len(chunk) {
			return nil, fmt.Errorf("got %d accounts, expected %d", len(res.Value), len(chunk))
		}
		for _, acc := range res.Value {
			out = append(out, acc != nil)
		}
	}
	return out, nil
}

func (l *ledger) GetMerkleTreeRoots(ctx context.Context, merkleTree solana.PublicKey) ([][32]byte, error) {
	data, err := l.GetAccountInfo(ctx, merkleTree)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("merkle tree account %s not found", merkleTree)
	}
	return DecodeMerkleTreeRoots(data)
}

func (l *ledger) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := l.client.GetLatestBlockhash(ctx, l.commitment)
	if err != nil {
		return solana.Hash{}, err
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, fmt.Errorf("empty blockhash response")
	}
	return res.Value.Blockhash, nil
}

func (l *ledger) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: l.commitment,
	})
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

// DecodeMerkleTreeRoots reads the root history of a merkle tree account:
// discriminator, filled subtrees, current root index, next leaf index and
// the ring of past roots.
func DecodeMerkleTreeRoots(data []byte) ([][32]byte, error) {
	dec := bin.NewBorshDecoder(data)
	if err := dec.SkipBytes(8 + merkleTreeHeight*32); err != nil {
		return nil, fmt.Errorf("invalid merkle tree account: %w", err)
	}
	if _, err := dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("invalid merkle tree account: %w", err)
	}
	if _, err := dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("invalid merkle tree account: %w", err)
	}
	roots := make([][32]byte, 0, rootHistorySize)
	for i := 0; i < rootHistorySize; i++ {
		buf, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, fmt.Errorf("invalid merkle tree account: %w", err)
		}
		roots = append(roots, [32]byte(buf))
	}
	return roots, nil
}
