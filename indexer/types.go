package indexer

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/types"
)

// Ledger is the narrow view of the chain the sdk depends on. Any transport
// satisfying it can back the indexer, the balance engine and the compiler.
type Ledger interface {
	// GetSignaturesForAddress returns signatures newest first.
	GetSignaturesForAddress(
		ctx context.Context, address solana.PublicKey, opts SignaturesOptions,
	) ([]SignatureInfo, error)
	// GetTransactions returns one entry per signature, nil when the ledger
	// does not (yet) know the transaction.
	GetTransactions(ctx context.Context, signatures []string) ([]*RawTransaction, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) ([]byte, error)
	// AccountsExist reports, per account, whether it exists on chain.
	AccountsExist(ctx context.Context, accounts []solana.PublicKey) ([]bool, error)
	// GetMerkleTreeRoots returns the root history of the merkle tree
	// account, each root little-endian as stored on chain.
	GetMerkleTreeRoots(ctx context.Context, merkleTree solana.PublicKey) ([][32]byte, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error)
}

type SignaturesOptions struct {
	Limit  int
	Before string
	Until  string
}

type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *int64
	Failed    bool
}

// RawInstruction is an instruction with its account indices resolved.
// Data is base58 as returned by the ledger.
type RawInstruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      string
}

type RawTransaction struct {
	Signature    string
	Slot         uint64
	BlockTime    *int64
	Failed       bool
	AccountKeys  []solana.PublicKey
	Instructions []RawInstruction
	// InnerInstructions are flattened in execution order.
	InnerInstructions []RawInstruction
}

// Options bound one indexing run. Until is the newest signature already
// indexed, Before the oldest one to continue from.
type Options struct {
	Limit  int
	Before string
	Until  string
}

type Result struct {
	Transactions []types.IndexedTransaction
	// OldestSignature is the oldest signature fetched, the Before of the
	// next page when walking history backwards.
	OldestSignature string
	// NewestSignature is the newest signature fetched, the Until of the
	// next incremental run.
	NewestSignature string
	// Dropped counts the signatures whose body could not be fetched.
	Dropped int
	// HasMore is set when the walk stopped at the limit with older
	// signatures left before OldestSignature.
	HasMore bool
}
